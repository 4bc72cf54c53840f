// Package store implements the chunked, single-writer embedded object store
// that backs one tenant: key derivation, schema migrations, whole-object
// CRUD, multipart upload sessions, prefix/delimiter listing, and
// server-side copy, all against one SQLite database file.
package store

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultChunkSize is CHUNK_SIZE: the maximum number of data bytes carried
// by a single chunk row, chosen to sit well under the storage engine's
// per-row size cap.
const DefaultChunkSize = 1 << 20 // 1 MiB

// ErrNotFound is returned by read operations when the requested object,
// upload, or part does not exist.
var ErrNotFound = errors.New("store: not found")

// TimeFormat is the ISO-8601 UTC timestamp form used for last_modified and
// in ListBucketResult entries.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// ObjectMeta is the chunk-0 metadata of a stored object.
type ObjectMeta struct {
	Bucket       string
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// Store is a single tenant's embedded object store. All exported methods
// are safe for concurrent use: access to the database is serialized by an
// internal mutex, giving this store a single-writer-per-tenant execution
// model so that "delete rows, then insert rows" is observed as atomic by
// every other caller.
type Store struct {
	db        *sql.DB
	mu        sync.Mutex
	chunkSize int
}

// Open opens (creating if necessary) the SQLite database at path and runs
// any unapplied migrations before returning. chunkSize <= 0 selects
// DefaultChunkSize.
func Open(ctx context.Context, path string, chunkSize int) (*Store, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening store %q: %w", path, err)
	}
	// The single-writer model is enforced at the application layer via s.mu;
	// capping the pool to one connection keeps SQLite's own locking in step
	// with that guarantee and avoids SQLITE_BUSY from concurrent connections.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating store %q: %w", path, err)
	}

	return &Store{db: db, chunkSize: chunkSize}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// computeETag returns the lowercase hex MD5 digest of data.
func computeETag(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// deleteObjectRowsTx removes every chunk row for (bucket, key).
func deleteObjectRowsTx(ctx context.Context, tx *sql.Tx, bucket, key string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM objects WHERE bucket = ? AND key = ?`, bucket, key)
	return err
}

// insertObjectChunksTx splits data into chunkSize-aligned slices and writes
// them as a dense chunk sequence starting at 0. Chunk 0 carries the full
// metadata set; subsequent chunks carry empty-string metadata and null
// depth/parent, per the data model in SPEC_FULL.md §3.
func insertObjectChunksTx(ctx context.Context, tx *sql.Tx, chunkSize int, bucket, key string, data []byte, etag, contentType string, lastModified time.Time) error {
	size := int64(len(data))
	d := depth(key)
	p := parent(key)

	firstLen := size
	if firstLen > int64(chunkSize) {
		firstLen = int64(chunkSize)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO objects (bucket, key, chunk_index, size, etag, last_modified, content_type, data, depth, parent)
		VALUES (?, ?, 0, ?, ?, ?, ?, ?, ?, ?)`,
		bucket, key, size, etag, lastModified.UTC().Format(TimeFormat), contentType, data[:firstLen], d, p)
	if err != nil {
		return fmt.Errorf("inserting chunk 0: %w", err)
	}

	idx := 1
	for offset := int64(chunkSize); offset < size; offset += int64(chunkSize) {
		end := offset + int64(chunkSize)
		if end > size {
			end = size
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO objects (bucket, key, chunk_index, size, etag, last_modified, content_type, data, depth, parent)
			VALUES (?, ?, ?, 0, '', '', '', ?, NULL, NULL)`,
			bucket, key, idx, data[offset:end])
		if err != nil {
			return fmt.Errorf("inserting chunk %d: %w", idx, err)
		}
		idx++
	}
	return nil
}

// PutObject replaces any existing object at (bucket, key) with the given
// body, computing its MD5 hex ETag. The delete-then-insert sequence runs
// inside one transaction under the tenant mutex, so a concurrent read
// observes either the prior object in full or the new one in full.
func (s *Store) PutObject(ctx context.Context, bucket, key string, body []byte, contentType string) (ObjectMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	etag := computeETag(body)
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ObjectMeta{}, fmt.Errorf("begin put: %w", err)
	}
	defer tx.Rollback()

	if err := deleteObjectRowsTx(ctx, tx, bucket, key); err != nil {
		return ObjectMeta{}, fmt.Errorf("clearing prior object: %w", err)
	}
	if err := insertObjectChunksTx(ctx, tx, s.chunkSize, bucket, key, body, etag, contentType, now); err != nil {
		return ObjectMeta{}, err
	}
	if err := tx.Commit(); err != nil {
		return ObjectMeta{}, fmt.Errorf("commit put: %w", err)
	}

	return ObjectMeta{Bucket: bucket, Key: key, Size: int64(len(body)), ETag: etag, ContentType: contentType, LastModified: now}, nil
}

// readMeta reads chunk 0 of (bucket, key). Returns ErrNotFound if absent.
func readMeta(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, bucket, key string) (ObjectMeta, error) {
	var m ObjectMeta
	var lastModified string
	row := q.QueryRowContext(ctx, `
		SELECT size, etag, last_modified, content_type
		FROM objects WHERE bucket = ? AND key = ? AND chunk_index = 0`, bucket, key)
	if err := row.Scan(&m.Size, &m.ETag, &lastModified, &m.ContentType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ObjectMeta{}, ErrNotFound
		}
		return ObjectMeta{}, fmt.Errorf("reading object metadata: %w", err)
	}
	t, err := time.Parse(TimeFormat, lastModified)
	if err != nil {
		t = time.Time{}
	}
	m.Bucket = bucket
	m.Key = key
	m.LastModified = t
	return m, nil
}

// HeadObject returns the metadata for (bucket, key) without reading chunk
// data. Returns ErrNotFound if the object does not exist.
func (s *Store) HeadObject(ctx context.Context, bucket, key string) (ObjectMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return readMeta(ctx, s.db, bucket, key)
}

// GetObject returns the metadata and full body for (bucket, key), streamed
// out of ascending chunk rows and concatenated into one buffer of exactly
// Size bytes. Returns ErrNotFound if the object does not exist.
func (s *Store) GetObject(ctx context.Context, bucket, key string) (ObjectMeta, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := readMeta(ctx, s.db, bucket, key)
	if err != nil {
		return ObjectMeta{}, nil, err
	}

	body := make([]byte, 0, meta.Size)
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM objects WHERE bucket = ? AND key = ? ORDER BY chunk_index ASC`, bucket, key)
	if err != nil {
		return ObjectMeta{}, nil, fmt.Errorf("reading object chunks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return ObjectMeta{}, nil, fmt.Errorf("scanning chunk: %w", err)
		}
		body = append(body, data...)
	}
	if err := rows.Err(); err != nil {
		return ObjectMeta{}, nil, err
	}
	return meta, body, nil
}

// DeleteObject removes every chunk row for (bucket, key). It returns nil
// whether or not the key previously existed, matching S3 delete semantics.
func (s *Store) DeleteObject(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()
	if err := deleteObjectRowsTx(ctx, tx, bucket, key); err != nil {
		return fmt.Errorf("deleting object: %w", err)
	}
	return tx.Commit()
}
