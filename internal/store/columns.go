package store

import (
	"context"
	"database/sql"

	"github.com/Dicklesworthstone/loglite/internal/apperr"
)

// Columns returns the active column descriptor set for the log table,
// reading PRAGMA table_info on first use and serving the cached result
// afterwards. The cache is invalidated whenever a migration commits or
// rolls back.
func (s *Store) Columns(ctx context.Context) ([]ColumnDescriptor, error) {
	s.columnsMu.Lock()
	defer s.columnsMu.Unlock()

	if s.columnsCache != nil {
		return s.columnsCache, nil
	}

	s.mu.RLock()
	rows, err := s.conn.QueryContext(ctx, "PRAGMA table_info("+s.tableName+")")
	s.mu.RUnlock()
	if err != nil {
		return nil, apperr.Store("reading table_info", err)
	}
	defer rows.Close()

	var cols []ColumnDescriptor
	for rows.Next() {
		var (
			cid        int
			name       string
			ctype      string
			notNull    int
			dflt       sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &primaryKey); err != nil {
			return nil, apperr.Store("scanning table_info row", err)
		}
		var defaultValue any
		if dflt.Valid {
			defaultValue = dflt.String
		}
		cols = append(cols, ColumnDescriptor{
			Name:              name,
			DeclaredType:      FieldType(ctype),
			NotNull:           notNull != 0,
			Default:           defaultValue,
			PrimaryKey:        primaryKey != 0,
			DictionaryEncoded: s.dictionaryColumns[name],
		})
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("iterating table_info", err)
	}

	s.columnsCache = cols
	return cols, nil
}

// ColumnNames is a convenience wrapper used by the query compiler to
// validate incoming filter field names against the active schema.
func (s *Store) ColumnNames(ctx context.Context) (map[string]bool, error) {
	cols, err := s.Columns(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(cols))
	for _, c := range cols {
		names[c.Name] = true
	}
	return names, nil
}

func (s *Store) invalidateColumnCache() {
	s.columnsMu.Lock()
	s.columnsCache = nil
	s.columnsMu.Unlock()
}
