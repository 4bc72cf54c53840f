package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ListObjectsOptions configures one ListObjectsV2 call.
type ListObjectsOptions struct {
	Prefix            string
	Delimiter         string
	StartAfter        string
	ContinuationToken string
	MaxKeys           int
}

// ListEntry is one object returned in a listing's Contents.
type ListEntry struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ListObjectsResult is one page of a ListObjectsV2 response.
type ListObjectsResult struct {
	Contents              []ListEntry
	CommonPrefixes        []string
	IsTruncated           bool
	NextContinuationToken string
}

// marker resolves the effective pagination cursor: the continuation token
// takes precedence over start-after, matching AWS's own precedence.
func (o ListObjectsOptions) marker() string {
	if o.ContinuationToken != "" {
		return o.ContinuationToken
	}
	return o.StartAfter
}

func (o ListObjectsOptions) maxKeys() int {
	if o.MaxKeys <= 0 {
		return 1000
	}
	return o.MaxKeys
}

// listItem is either a Contents entry or a CommonPrefixes entry, ordered
// for merge by its sort string (the key, or the prefix itself).
type listItem struct {
	sortKey  string
	isPrefix bool
	entry    ListEntry
	prefix   string
}

// ListObjects implements ListObjectsV2 with prefix/delimiter/
// continuation-token/max-keys, dispatching to the slash-delimiter fast
// path, the generic delimiter path, or the no-delimiter path.
func (s *Store) ListObjects(ctx context.Context, bucket string, opts ListObjectsOptions) (ListObjectsResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch opts.Delimiter {
	case "/":
		return s.listSlashDelimiter(ctx, bucket, opts)
	case "":
		return s.listNoDelimiter(ctx, bucket, opts)
	default:
		return s.listGenericDelimiter(ctx, bucket, opts)
	}
}

// prefixRangeClause returns the SQL fragment and args for a half-open prefix
// range filter, or ("", nil) if prefix is empty (meaning: no bound).
// Never uses LIKE, so '%' and '_' in prefix stay literal.
func prefixRangeClause(column, prefix string) (string, []any) {
	if prefix == "" {
		return "", nil
	}
	return fmt.Sprintf(" AND %s >= ? AND %s < ?", column, column), []any{prefix, nextPrefix(prefix)}
}

func (s *Store) listSlashDelimiter(ctx context.Context, bucket string, opts ListObjectsOptions) (ListObjectsResult, error) {
	prefix := opts.Prefix
	marker := opts.marker()
	maxKeys := opts.maxKeys()
	targetDepth := depth(prefix) + 1

	// Common prefixes query: distinct parent values in the prefix range,
	// using the (bucket, parent) filtered index from migration 1.
	query := `SELECT DISTINCT parent FROM objects WHERE bucket = ? AND chunk_index = 0`
	args := []any{bucket}
	clause, rangeArgs := prefixRangeClause("parent", prefix)
	query += clause
	args = append(args, rangeArgs...)
	if marker != "" {
		query += ` AND parent > ?`
		args = append(args, marker)
	}
	query += ` ORDER BY parent ASC`

	prows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return ListObjectsResult{}, fmt.Errorf("listing common prefixes: %w", err)
	}
	var items []listItem
	for prows.Next() {
		var p string
		if err := prows.Scan(&p); err != nil {
			prows.Close()
			return ListObjectsResult{}, fmt.Errorf("scanning common prefix: %w", err)
		}
		if !strings.HasPrefix(p, prefix) || depth(p) != targetDepth {
			continue
		}
		items = append(items, listItem{sortKey: p, isPrefix: true, prefix: p})
	}
	if err := prows.Err(); err != nil {
		prows.Close()
		return ListObjectsResult{}, err
	}
	prows.Close()

	// Direct contents query: chunk-0 rows whose parent is exactly prefix.
	cquery := `SELECT key, size, etag, last_modified FROM objects WHERE bucket = ? AND chunk_index = 0 AND parent = ?`
	cargs := []any{bucket, prefix}
	if marker != "" {
		cquery += ` AND key > ?`
		cargs = append(cargs, marker)
	}
	cquery += ` ORDER BY key ASC LIMIT ?`
	cargs = append(cargs, maxKeys+1)

	crows, err := s.db.QueryContext(ctx, cquery, cargs...)
	if err != nil {
		return ListObjectsResult{}, fmt.Errorf("listing direct contents: %w", err)
	}
	for crows.Next() {
		e, err := scanListEntry(crows)
		if err != nil {
			crows.Close()
			return ListObjectsResult{}, err
		}
		items = append(items, listItem{sortKey: e.Key, entry: e})
	}
	if err := crows.Err(); err != nil {
		crows.Close()
		return ListObjectsResult{}, err
	}
	crows.Close()

	sort.Slice(items, func(i, j int) bool { return items[i].sortKey < items[j].sortKey })

	return mergeListItems(items, maxKeys), nil
}

func (s *Store) listGenericDelimiter(ctx context.Context, bucket string, opts ListObjectsOptions) (ListObjectsResult, error) {
	prefix := opts.Prefix
	delim := opts.Delimiter
	marker := opts.marker()
	maxKeys := opts.maxKeys()

	query := `SELECT key, size, etag, last_modified FROM objects WHERE bucket = ? AND chunk_index = 0`
	args := []any{bucket}
	clause, rangeArgs := prefixRangeClause("key", prefix)
	query += clause
	args = append(args, rangeArgs...)
	if marker != "" {
		query += ` AND key > ?`
		args = append(args, marker)
	}
	query += ` ORDER BY key ASC LIMIT ?`
	args = append(args, maxKeys*10+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return ListObjectsResult{}, fmt.Errorf("listing objects: %w", err)
	}
	defer rows.Close()

	var result ListObjectsResult
	seenPrefixes := make(map[string]bool)
	count := 0
	for rows.Next() {
		if count >= maxKeys {
			result.IsTruncated = true
			break
		}
		e, err := scanListEntry(rows)
		if err != nil {
			return ListObjectsResult{}, err
		}
		tail := e.Key[len(prefix):]
		if idx := strings.Index(tail, delim); idx >= 0 {
			cp := prefix + tail[:idx+len(delim)]
			if !seenPrefixes[cp] {
				seenPrefixes[cp] = true
				result.CommonPrefixes = append(result.CommonPrefixes, cp)
				count++
			}
			result.NextContinuationToken = e.Key
			continue
		}
		result.Contents = append(result.Contents, e)
		result.NextContinuationToken = e.Key
		count++
	}
	if err := rows.Err(); err != nil {
		return ListObjectsResult{}, err
	}
	if !result.IsTruncated {
		result.NextContinuationToken = ""
	}
	return result, nil
}

func (s *Store) listNoDelimiter(ctx context.Context, bucket string, opts ListObjectsOptions) (ListObjectsResult, error) {
	prefix := opts.Prefix
	marker := opts.marker()
	maxKeys := opts.maxKeys()

	query := `SELECT key, size, etag, last_modified FROM objects WHERE bucket = ? AND chunk_index = 0`
	args := []any{bucket}
	clause, rangeArgs := prefixRangeClause("key", prefix)
	query += clause
	args = append(args, rangeArgs...)
	if marker != "" {
		query += ` AND key > ?`
		args = append(args, marker)
	}
	query += ` ORDER BY key ASC LIMIT ?`
	args = append(args, maxKeys+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return ListObjectsResult{}, fmt.Errorf("listing objects: %w", err)
	}
	defer rows.Close()

	var entries []ListEntry
	for rows.Next() {
		e, err := scanListEntry(rows)
		if err != nil {
			return ListObjectsResult{}, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return ListObjectsResult{}, err
	}

	var result ListObjectsResult
	if len(entries) > maxKeys {
		result.Contents = entries[:maxKeys]
		result.IsTruncated = true
		result.NextContinuationToken = result.Contents[len(result.Contents)-1].Key
	} else {
		result.Contents = entries
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanListEntry(r scanner) (ListEntry, error) {
	var e ListEntry
	var lastModified string
	if err := r.Scan(&e.Key, &e.Size, &e.ETag, &lastModified); err != nil {
		return ListEntry{}, fmt.Errorf("scanning list entry: %w", err)
	}
	if t, err := time.Parse(TimeFormat, lastModified); err == nil {
		e.LastModified = t
	}
	return e, nil
}

func mergeListItems(items []listItem, maxKeys int) ListObjectsResult {
	var result ListObjectsResult
	truncated := len(items) > maxKeys
	if truncated {
		items = items[:maxKeys]
	}
	for _, it := range items {
		if it.isPrefix {
			result.CommonPrefixes = append(result.CommonPrefixes, it.prefix)
		} else {
			result.Contents = append(result.Contents, it.entry)
		}
	}
	result.IsTruncated = truncated
	if truncated {
		result.NextContinuationToken = items[len(items)-1].sortKey
	}
	return result
}
