package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/maxmcd/do-s3/internal/uid"
)

// MultipartUpload is a multipart upload session's bookkeeping row.
type MultipartUpload struct {
	UploadID    string
	Bucket      string
	Key         string
	ContentType string
	CreatedAt   time.Time
}

// Part is one uploaded part's chunk-0 metadata.
type Part struct {
	PartNumber int
	Size       int64
	ETag       string
}

// CreateMultipartUpload starts a new upload session (Initiated state) for
// (bucket, key) and returns its freshly generated upload id.
func (s *Store) CreateMultipartUpload(ctx context.Context, bucket, key, contentType string) (MultipartUpload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := MultipartUpload{
		UploadID:    uid.New(),
		Bucket:      bucket,
		Key:         key,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO multipart_uploads (upload_id, bucket, key, created_at, content_type)
		VALUES (?, ?, ?, ?, ?)`,
		u.UploadID, u.Bucket, u.Key, u.CreatedAt.Format(TimeFormat), u.ContentType)
	if err != nil {
		return MultipartUpload{}, fmt.Errorf("creating multipart upload: %w", err)
	}
	return u, nil
}

// getUpload reads a multipart_uploads row, scoped to (bucket, key) so a
// caller cannot address a session through the wrong object path.
func getUpload(ctx context.Context, db *sql.DB, bucket, key, uploadID string) (MultipartUpload, error) {
	var u MultipartUpload
	var createdAt string
	row := db.QueryRowContext(ctx, `
		SELECT upload_id, bucket, key, created_at, content_type
		FROM multipart_uploads WHERE upload_id = ? AND bucket = ? AND key = ?`, uploadID, bucket, key)
	if err := row.Scan(&u.UploadID, &u.Bucket, &u.Key, &createdAt, &u.ContentType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return MultipartUpload{}, ErrNotFound
		}
		return MultipartUpload{}, fmt.Errorf("reading multipart upload: %w", err)
	}
	if t, err := time.Parse(TimeFormat, createdAt); err == nil {
		u.CreatedAt = t
	}
	return u, nil
}

// UploadPart stores one part's bytes, chunked the same way as whole
// objects, keyed by (upload_id, part_number). Re-uploading a part number
// is idempotent: prior chunks for that part number are deleted first.
func (s *Store) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, data []byte) (Part, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := getUpload(ctx, s.db, bucket, key, uploadID); err != nil {
		return Part{}, err
	}

	etag := computeETag(data)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Part{}, fmt.Errorf("begin upload part: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM multipart_parts WHERE upload_id = ? AND part_number = ?`, uploadID, partNumber); err != nil {
		return Part{}, fmt.Errorf("clearing prior part: %w", err)
	}

	size := int64(len(data))
	firstLen := size
	if firstLen > int64(s.chunkSize) {
		firstLen = int64(s.chunkSize)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO multipart_parts (upload_id, part_number, chunk_index, size, etag, data)
		VALUES (?, ?, 0, ?, ?, ?)`, uploadID, partNumber, size, etag, data[:firstLen]); err != nil {
		return Part{}, fmt.Errorf("inserting part chunk 0: %w", err)
	}

	idx := 1
	for offset := int64(s.chunkSize); offset < size; offset += int64(s.chunkSize) {
		end := offset + int64(s.chunkSize)
		if end > size {
			end = size
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO multipart_parts (upload_id, part_number, chunk_index, size, etag, data)
			VALUES (?, ?, ?, 0, '', ?)`, uploadID, partNumber, idx, data[offset:end]); err != nil {
			return Part{}, fmt.Errorf("inserting part chunk %d: %w", idx, err)
		}
		idx++
	}

	if err := tx.Commit(); err != nil {
		return Part{}, fmt.Errorf("commit upload part: %w", err)
	}
	return Part{PartNumber: partNumber, Size: size, ETag: etag}, nil
}

// AbortMultipartUpload discards a session and all of its parts. It is
// idempotent: aborting an already-gone upload id is not an error.
func (s *Store) AbortMultipartUpload(ctx context.Context, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin abort: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM multipart_parts WHERE upload_id = ?`, uploadID); err != nil {
		return fmt.Errorf("deleting parts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM multipart_uploads WHERE upload_id = ?`, uploadID); err != nil {
		return fmt.Errorf("deleting upload session: %w", err)
	}
	return tx.Commit()
}

// UploadExists reports whether uploadID is a live session for
// (bucket, key).
func (s *Store) UploadExists(ctx context.Context, bucket, key, uploadID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := getUpload(ctx, s.db, bucket, key, uploadID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ErrNoParts is returned by CompleteMultipartUpload when the session has
// zero accumulated parts.
var ErrNoParts = errors.New("store: multipart upload has no parts")

// CompleteMultipartUpload assembles all parts of uploadID, in ascending
// part_number order, into a single new object at (bucket, key), computes
// the synthetic composite ETag, and tears down the session. The assembled
// object replaces any object already at that key.
func (s *Store) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string) (ObjectMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	upload, err := getUpload(ctx, s.db, bucket, key, uploadID)
	if err != nil {
		return ObjectMeta{}, err
	}

	partRows, err := s.db.QueryContext(ctx, `
		SELECT part_number, size, etag FROM multipart_parts
		WHERE upload_id = ? AND chunk_index = 0 ORDER BY part_number ASC`, uploadID)
	if err != nil {
		return ObjectMeta{}, fmt.Errorf("listing parts for completion: %w", err)
	}
	var parts []Part
	for partRows.Next() {
		var p Part
		if err := partRows.Scan(&p.PartNumber, &p.Size, &p.ETag); err != nil {
			partRows.Close()
			return ObjectMeta{}, fmt.Errorf("scanning part: %w", err)
		}
		parts = append(parts, p)
	}
	if err := partRows.Err(); err != nil {
		partRows.Close()
		return ObjectMeta{}, err
	}
	partRows.Close()

	if len(parts) == 0 {
		return ObjectMeta{}, ErrNoParts
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })

	var totalSize int64
	compositeMD5 := make([]byte, 0, len(parts)*16)
	for _, p := range parts {
		totalSize += p.Size
		raw, err := hex.DecodeString(p.ETag)
		if err != nil {
			return ObjectMeta{}, fmt.Errorf("decoding part etag %q: %w", p.ETag, err)
		}
		compositeMD5 = append(compositeMD5, raw...)
	}
	etag := fmt.Sprintf("%s-%d", computeETag(compositeMD5), len(parts))

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ObjectMeta{}, fmt.Errorf("begin complete: %w", err)
	}
	defer tx.Rollback()

	if err := deleteObjectRowsTx(ctx, tx, bucket, key); err != nil {
		return ObjectMeta{}, fmt.Errorf("clearing prior object: %w", err)
	}

	d := depth(key)
	p := parent(key)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO objects (bucket, key, chunk_index, size, etag, last_modified, content_type, data, depth, parent)
		VALUES (?, ?, 0, ?, ?, ?, ?, x'', ?, ?)`,
		bucket, key, totalSize, etag, now.Format(TimeFormat), upload.ContentType, d, p); err != nil {
		return ObjectMeta{}, fmt.Errorf("inserting assembled chunk 0: %w", err)
	}

	destIndex := 1
	for _, p := range parts {
		partChunks, err := tx.QueryContext(ctx, `
			SELECT chunk_index, data FROM multipart_parts
			WHERE upload_id = ? AND part_number = ? ORDER BY chunk_index ASC`, uploadID, p.PartNumber)
		if err != nil {
			return ObjectMeta{}, fmt.Errorf("reading part %d chunks: %w", p.PartNumber, err)
		}
		for partChunks.Next() {
			var chunkIndex int
			var data []byte
			if err := partChunks.Scan(&chunkIndex, &data); err != nil {
				partChunks.Close()
				return ObjectMeta{}, fmt.Errorf("scanning part chunk: %w", err)
			}
			if chunkIndex == 0 {
				if len(data) == 0 {
					continue
				}
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO objects (bucket, key, chunk_index, size, etag, last_modified, content_type, data, depth, parent)
					VALUES (?, ?, ?, 0, '', '', '', ?, NULL, NULL)`, bucket, key, destIndex, data); err != nil {
					partChunks.Close()
					return ObjectMeta{}, fmt.Errorf("inserting assembled chunk %d: %w", destIndex, err)
				}
				destIndex++
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO objects (bucket, key, chunk_index, size, etag, last_modified, content_type, data, depth, parent)
				VALUES (?, ?, ?, 0, '', '', '', ?, NULL, NULL)`, bucket, key, destIndex, data); err != nil {
				partChunks.Close()
				return ObjectMeta{}, fmt.Errorf("inserting assembled chunk %d: %w", destIndex, err)
			}
			destIndex++
		}
		if err := partChunks.Err(); err != nil {
			partChunks.Close()
			return ObjectMeta{}, err
		}
		partChunks.Close()
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM multipart_parts WHERE upload_id = ?`, uploadID); err != nil {
		return ObjectMeta{}, fmt.Errorf("cleaning up parts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM multipart_uploads WHERE upload_id = ?`, uploadID); err != nil {
		return ObjectMeta{}, fmt.Errorf("cleaning up upload session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ObjectMeta{}, fmt.Errorf("commit complete: %w", err)
	}

	return ObjectMeta{Bucket: bucket, Key: key, Size: totalSize, ETag: etag, ContentType: upload.ContentType, LastModified: now}, nil
}

// ListUploadsOptions filters and paginates ListMultipartUploads.
type ListUploadsOptions struct {
	Prefix         string
	KeyMarker      string
	UploadIDMarker string
	MaxUploads     int
}

// ListUploadsResult is the page returned by ListMultipartUploads.
type ListUploadsResult struct {
	Uploads            []MultipartUpload
	IsTruncated        bool
	NextKeyMarker      string
	NextUploadIDMarker string
}

// ListMultipartUploads returns in-progress sessions for bucket, ordered by
// (key, upload_id), filtered by a half-open prefix range (never LIKE) and
// paginated by key/upload-id marker.
func (s *Store) ListMultipartUploads(ctx context.Context, bucket string, opts ListUploadsOptions) (ListUploadsResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	maxUploads := opts.MaxUploads
	if maxUploads <= 0 {
		maxUploads = 1000
	}

	query := `SELECT upload_id, bucket, key, created_at, content_type FROM multipart_uploads WHERE bucket = ?`
	args := []any{bucket}

	if opts.Prefix != "" {
		query += ` AND key >= ? AND key < ?`
		args = append(args, opts.Prefix, nextPrefix(opts.Prefix))
	}
	if opts.KeyMarker != "" && opts.UploadIDMarker != "" {
		query += ` AND (key > ? OR (key = ? AND upload_id > ?))`
		args = append(args, opts.KeyMarker, opts.KeyMarker, opts.UploadIDMarker)
	} else if opts.KeyMarker != "" {
		query += ` AND key > ?`
		args = append(args, opts.KeyMarker)
	}
	query += ` ORDER BY key ASC, upload_id ASC LIMIT ?`
	args = append(args, maxUploads+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return ListUploadsResult{}, fmt.Errorf("listing multipart uploads: %w", err)
	}
	defer rows.Close()

	var uploads []MultipartUpload
	for rows.Next() {
		var u MultipartUpload
		var createdAt string
		if err := rows.Scan(&u.UploadID, &u.Bucket, &u.Key, &createdAt, &u.ContentType); err != nil {
			return ListUploadsResult{}, fmt.Errorf("scanning multipart upload: %w", err)
		}
		if t, err := time.Parse(TimeFormat, createdAt); err == nil {
			u.CreatedAt = t
		}
		uploads = append(uploads, u)
	}
	if err := rows.Err(); err != nil {
		return ListUploadsResult{}, err
	}

	result := ListUploadsResult{Uploads: uploads}
	if len(uploads) > maxUploads {
		result.Uploads = uploads[:maxUploads]
		result.IsTruncated = true
		last := result.Uploads[len(result.Uploads)-1]
		result.NextKeyMarker = last.Key
		result.NextUploadIDMarker = last.UploadID
	}
	return result, nil
}
