package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one immutable, ordered schema step. Once published, a
// migration's body must never change — schema changes are added as new
// entries in migrations below.
type migration struct {
	version int
	apply   func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{version: 0, apply: migration0},
	{version: 1, apply: migration1},
}

// runMigrations ensures the _migrations bookkeeping table exists, then
// applies every migration whose version is greater than the maximum
// already-applied version, in order, each inside its own transaction.
func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			version INTEGER PRIMARY KEY
		)`); err != nil {
		return fmt.Errorf("creating _migrations table: %w", err)
	}

	var maxVersion sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM _migrations`).Scan(&maxVersion); err != nil {
		return fmt.Errorf("reading applied migration version: %w", err)
	}
	applied := -1
	if maxVersion.Valid {
		applied = int(maxVersion.Int64)
	}

	for _, m := range migrations {
		if m.version <= applied {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", m.version, err)
		}
		if err := m.apply(ctx, tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO _migrations (version) VALUES (?)`, m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", m.version, err)
		}
	}
	return nil
}

// migration0 creates the base schema: objects, multipart_uploads, and
// multipart_parts, plus a listing index over chunk-0 object rows.
func migration0(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE objects (
			bucket       TEXT NOT NULL,
			key          TEXT NOT NULL,
			chunk_index  INTEGER NOT NULL,
			size         INTEGER NOT NULL DEFAULT 0,
			etag         TEXT NOT NULL DEFAULT '',
			last_modified TEXT NOT NULL DEFAULT '',
			content_type TEXT NOT NULL DEFAULT '',
			data         BLOB NOT NULL DEFAULT (x''),
			PRIMARY KEY (bucket, key, chunk_index)
		)`,
		`CREATE INDEX idx_objects_listing ON objects (bucket, key) WHERE chunk_index = 0`,
		`CREATE TABLE multipart_uploads (
			upload_id    TEXT PRIMARY KEY,
			bucket       TEXT NOT NULL,
			key          TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			content_type TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX idx_multipart_uploads_listing ON multipart_uploads (bucket, key, upload_id)`,
		`CREATE TABLE multipart_parts (
			upload_id    TEXT NOT NULL,
			part_number  INTEGER NOT NULL,
			chunk_index  INTEGER NOT NULL,
			size         INTEGER NOT NULL DEFAULT 0,
			etag         TEXT NOT NULL DEFAULT '',
			data         BLOB NOT NULL DEFAULT (x''),
			PRIMARY KEY (upload_id, part_number, chunk_index)
		)`,
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("exec %q: %w", s, err)
		}
	}
	return nil
}

// migration1 adds the depth/parent denormalisation used by the
// slash-delimiter listing fast path, backfilling existing chunk-0 rows.
func migration1(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`ALTER TABLE objects ADD COLUMN depth INTEGER`,
		`ALTER TABLE objects ADD COLUMN parent TEXT`,
		`CREATE INDEX idx_objects_parent ON objects (bucket, parent) WHERE chunk_index = 0`,
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("exec %q: %w", s, err)
		}
	}

	rows, err := tx.QueryContext(ctx, `SELECT bucket, key FROM objects WHERE chunk_index = 0`)
	if err != nil {
		return fmt.Errorf("selecting chunk-0 rows to backfill: %w", err)
	}
	type rowKey struct{ bucket, key string }
	var toBackfill []rowKey
	for rows.Next() {
		var rk rowKey
		if err := rows.Scan(&rk.bucket, &rk.key); err != nil {
			rows.Close()
			return fmt.Errorf("scanning backfill row: %w", err)
		}
		toBackfill = append(toBackfill, rk)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	stmt, err := tx.PrepareContext(ctx, `UPDATE objects SET depth = ?, parent = ? WHERE bucket = ? AND key = ? AND chunk_index = 0`)
	if err != nil {
		return fmt.Errorf("preparing backfill update: %w", err)
	}
	defer stmt.Close()

	for _, rk := range toBackfill {
		if _, err := stmt.ExecContext(ctx, depth(rk.key), parent(rk.key), rk.bucket, rk.key); err != nil {
			return fmt.Errorf("backfilling %s/%s: %w", rk.bucket, rk.key, err)
		}
	}
	return nil
}
