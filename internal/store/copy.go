package store

import (
	"context"
	"fmt"
	"time"
)

// CopyResult is the outcome of a successful server-side copy.
type CopyResult struct {
	ETag         string
	LastModified time.Time
}

// CopyObject copies every chunk of (srcBucket, srcKey) to (dstBucket,
// dstKey), chunk-by-chunk, preserving byte contents and the source's size
// and ETag, but stamping a fresh last_modified and recomputed depth/parent
// for the destination key. Cross-bucket copies are rejected by the caller;
// this method itself does not compare the two bucket values, leaving the
// InvalidArgument decision to the HTTP handler so the store stays free of
// S3 error semantics.
func (s *Store) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (CopyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := readMeta(ctx, s.db, srcBucket, srcKey)
	if err != nil {
		return CopyResult{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CopyResult{}, fmt.Errorf("begin copy: %w", err)
	}
	defer tx.Rollback()

	// Read every source chunk into memory before touching the destination
	// rows: when src and dst name the same (bucket, key) — a same-key
	// "touch" copy used to refresh metadata — deleting the destination
	// first would delete the only rows left to read.
	type chunkRow struct {
		index int
		data  []byte
	}
	srcRows, err := tx.QueryContext(ctx, `
		SELECT chunk_index, data FROM objects WHERE bucket = ? AND key = ? ORDER BY chunk_index ASC`,
		srcBucket, srcKey)
	if err != nil {
		return CopyResult{}, fmt.Errorf("reading source chunks: %w", err)
	}
	var chunks []chunkRow
	for srcRows.Next() {
		var c chunkRow
		if err := srcRows.Scan(&c.index, &c.data); err != nil {
			srcRows.Close()
			return CopyResult{}, fmt.Errorf("scanning source chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := srcRows.Err(); err != nil {
		srcRows.Close()
		return CopyResult{}, err
	}
	srcRows.Close()

	if err := deleteObjectRowsTx(ctx, tx, dstBucket, dstKey); err != nil {
		return CopyResult{}, fmt.Errorf("clearing copy destination: %w", err)
	}

	now := time.Now().UTC()
	d := depth(dstKey)
	p := parent(dstKey)

	insertChunk0, err := tx.PrepareContext(ctx, `
		INSERT INTO objects (bucket, key, chunk_index, size, etag, last_modified, content_type, data, depth, parent)
		VALUES (?, ?, 0, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return CopyResult{}, err
	}
	defer insertChunk0.Close()

	insertChunkN, err := tx.PrepareContext(ctx, `
		INSERT INTO objects (bucket, key, chunk_index, size, etag, last_modified, content_type, data, depth, parent)
		VALUES (?, ?, ?, 0, '', '', '', ?, NULL, NULL)`)
	if err != nil {
		return CopyResult{}, err
	}
	defer insertChunkN.Close()

	for _, c := range chunks {
		if c.index == 0 {
			if _, err := insertChunk0.ExecContext(ctx, dstBucket, dstKey, meta.Size, meta.ETag, now.Format(TimeFormat), meta.ContentType, c.data, d, p); err != nil {
				return CopyResult{}, fmt.Errorf("inserting destination chunk 0: %w", err)
			}
			continue
		}
		if _, err := insertChunkN.ExecContext(ctx, dstBucket, dstKey, c.index, c.data); err != nil {
			return CopyResult{}, fmt.Errorf("inserting destination chunk %d: %w", c.index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return CopyResult{}, fmt.Errorf("commit copy: %w", err)
	}

	return CopyResult{ETag: meta.ETag, LastModified: now}, nil
}
