package store

import (
	"github.com/maxmcd/do-s3/internal/serialization"
)

// Backup returns a JSON snapshot of every row in the store, suitable for
// out-of-band migration or disaster recovery.
func (s *Store) Backup() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return serialization.Export(s.db)
}

// Restore loads a JSON snapshot produced by Backup into the store. When
// replace is true, existing rows in the affected tables are deleted first;
// otherwise rows are merged in, skipping any that already exist.
func (s *Store) Restore(jsonStr string, replace bool) (*serialization.ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return serialization.Import(s.db, jsonStr, replace)
}
