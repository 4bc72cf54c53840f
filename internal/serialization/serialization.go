// Package serialization handles backup export/import between a tenant's
// SQLite store and a JSON snapshot, for out-of-band migration and disaster
// recovery of a single tenant.
package serialization

import (
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const (
	Version       = "0.1.0"
	ExportVersion = 1
)

// AllTables lists the tables backed up, in dependency order.
var AllTables = []string{"objects", "multipart_uploads", "multipart_parts"}

// blobFields are columns holding raw chunk bytes, base64-encoded on export.
var blobFields = map[string]bool{"data": true}

var tableColumns = map[string][]string{
	"objects":           {"bucket", "key", "chunk_index", "size", "etag", "last_modified", "content_type", "data", "depth", "parent"},
	"multipart_uploads": {"upload_id", "bucket", "key", "created_at", "content_type"},
	"multipart_parts":   {"upload_id", "part_number", "chunk_index", "size", "etag", "data"},
}

var tableOrderBy = map[string]string{
	"objects":           "bucket, key, chunk_index",
	"multipart_uploads": "upload_id",
	"multipart_parts":   "upload_id, part_number, chunk_index",
}

var deleteOrder = []string{"multipart_parts", "multipart_uploads", "objects"}
var insertOrder = []string{"objects", "multipart_uploads", "multipart_parts"}

// ImportResult holds the outcome of an import operation.
type ImportResult struct {
	Counts   map[string]int
	Skipped  map[string]int
	Warnings []string
}

// Export reads every table in AllTables from db and returns a JSON snapshot.
func Export(db *sql.DB) (string, error) {
	result := map[string]any{
		"do_s3_export": map[string]any{
			"version": ExportVersion,
			"source":  "go/" + Version,
		},
	}

	for _, table := range AllTables {
		columns := tableColumns[table]
		query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(columns, ", "), table, tableOrderBy[table])
		rows, err := db.Query(query)
		if err != nil {
			return "", fmt.Errorf("querying %s: %w", table, err)
		}

		tableRows := make([]map[string]any, 0)
		for rows.Next() {
			values := make([]any, len(columns))
			ptrs := make([]any, len(columns))
			for i := range values {
				ptrs[i] = &values[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				rows.Close()
				return "", fmt.Errorf("scanning %s row: %w", table, err)
			}
			row := make(map[string]any, len(columns))
			for i, col := range columns {
				row[col] = convertValue(col, values[i])
			}
			tableRows = append(tableRows, row)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return "", fmt.Errorf("iterating %s: %w", table, err)
		}

		result[table] = tableRows
	}

	return marshalSorted(result)
}

// Import replaces (when replace is true) or merges (INSERT OR IGNORE
// otherwise) the contents of db's tables with the rows in jsonStr, in
// dependency order.
func Import(db *sql.DB, jsonStr string, replace bool) (*ImportResult, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	envelope, _ := data["do_s3_export"].(map[string]any)
	version, _ := envelope["version"].(float64)
	if version < 1 || version > ExportVersion {
		return nil, fmt.Errorf("unsupported export version: %v", version)
	}

	result := &ImportResult{Counts: make(map[string]int), Skipped: make(map[string]int)}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	if replace {
		for _, table := range deleteOrder {
			if _, ok := data[table]; ok {
				if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
					tx.Rollback()
					return nil, fmt.Errorf("deleting %s: %w", table, err)
				}
			}
		}
	}

	for _, table := range insertOrder {
		rowsData, ok := data[table]
		if !ok {
			continue
		}
		rowList, ok := rowsData.([]any)
		if !ok {
			continue
		}
		columns := tableColumns[table]

		inserted, skipped := 0, 0
		for _, rawRow := range rowList {
			rowMap, ok := rawRow.(map[string]any)
			if !ok {
				skipped++
				continue
			}

			collapsed := collapseRow(rowMap)
			placeholders := make([]string, len(columns))
			values := make([]any, len(columns))
			for i, col := range columns {
				placeholders[i] = "?"
				values[i] = collapsed[col]
			}

			verb := "INSERT OR IGNORE"
			if replace {
				verb = "INSERT"
			}
			query := fmt.Sprintf("%s INTO %s (%s) VALUES (%s)", verb, table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

			res, err := tx.Exec(query, values...)
			if err != nil {
				skipped++
				result.Warnings = append(result.Warnings, fmt.Sprintf("skipped %s row: %v", table, err))
				continue
			}
			if affected, _ := res.RowsAffected(); affected > 0 {
				inserted++
			} else {
				skipped++
			}
		}

		result.Counts[table] = inserted
		result.Skipped[table] = skipped
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return result, nil
}

func convertValue(col string, val any) any {
	if val == nil {
		return nil
	}
	if blobFields[col] {
		b, ok := val.([]byte)
		if !ok {
			return ""
		}
		return base64.StdEncoding.EncodeToString(b)
	}
	if v, ok := val.(int64); ok {
		return v
	}
	if b, ok := val.([]byte); ok {
		return string(b)
	}
	return val
}

func collapseRow(row map[string]any) map[string]any {
	result := make(map[string]any, len(row))
	for k, v := range row {
		if blobFields[k] {
			s, _ := v.(string)
			decoded, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				result[k] = []byte{}
			} else {
				result[k] = decoded
			}
			continue
		}
		result[k] = v
	}
	return result
}

// marshalSorted produces JSON with sorted top-level keys, 2-space indent.
func marshalSorted(data map[string]any) (string, error) {
	b, err := json.MarshalIndent(sortedMap(data), "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type sortedMap map[string]any

func (m sortedMap) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyBytes...)
		buf = append(buf, ':')

		valBytes, err := marshalValue(m[k])
		if err != nil {
			return nil, err
		}
		buf = append(buf, valBytes...)
	}
	buf = append(buf, '}')
	return buf, nil
}

func marshalValue(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		return sortedMap(val).MarshalJSON()
	case []any:
		buf := []byte{'['}
		for i, elem := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			b, err := marshalValue(elem)
			if err != nil {
				return nil, err
			}
			buf = append(buf, b...)
		}
		buf = append(buf, ']')
		return buf, nil
	default:
		return json.Marshal(v)
	}
}
