package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/Dicklesworthstone/loglite/internal/apperr"
	"github.com/Dicklesworthstone/loglite/internal/query"
)

// QueryResult is one page of matching log rows plus the total match count,
// needed for client-side pagination of the GET /logs response.
type QueryResult struct {
	Total int64
	Rows  []Record
}

// Query runs a compiled filter set against the log table, selecting only
// `fields` (or every column when fields is ["*"]) and paginating with
// offset/limit. Results are ordered newest-first, breaking timestamp ties
// by id ("timestamp DESC, id DESC" — this port's resolution of an open
// question left by the original).
func (s *Store) Query(ctx context.Context, fields []string, compiled query.Compiled, offset, limit int) (*QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	countStmt := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", s.tableName, compiled.Where)
	if err := s.conn.QueryRowContext(ctx, countStmt, compiled.Args...).Scan(&total); err != nil {
		return nil, apperr.Store("counting matching rows", err)
	}

	selectList := "*"
	if len(fields) > 0 && fields[0] != "*" {
		selectList = strings.Join(fields, ",")
	}
	selectStmt := fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s ORDER BY %s DESC, id DESC LIMIT ? OFFSET ?",
		selectList, s.tableName, compiled.Where, s.timestampField)

	args := append(append([]any{}, compiled.Args...), limit, offset)
	rows, err := s.conn.QueryContext(ctx, selectStmt, args...)
	if err != nil {
		return nil, apperr.Store("querying rows", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, apperr.Store("reading result columns", err)
	}

	var out []Record
	for rows.Next() {
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, apperr.Store("scanning row", err)
		}
		rec := make(Record, len(columns))
		for i, col := range columns {
			rec[col] = s.decodeCell(col, raw[i])
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("iterating rows", err)
	}

	return &QueryResult{Total: total, Rows: out}, nil
}

// decodeCell reverses compression for columns configured with it. Dictionary
// substitution is intentionally left as the raw interned integer — callers
// that need the original value resolve it themselves via the dictionary.
// Dictionary columns are write-interned, read-raw unless a caller
// explicitly asks for resolution.
func (s *Store) decodeCell(column string, value any) any {
	if !s.compression.Applies(column) {
		return value
	}
	blob, ok := value.([]byte)
	if !ok {
		return value
	}
	decoded, err := s.codec.Decompress(blob)
	if err != nil {
		return value
	}
	return string(decoded)
}

// Delete removes rows matching the compiled filter and returns the number
// of rows removed.
func (s *Store) Delete(ctx context.Context, compiled query.Compiled) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", s.tableName, compiled.Where)
	res, err := s.conn.ExecContext(ctx, stmt, compiled.Args...)
	if err != nil {
		return 0, apperr.Store("deleting rows", err)
	}
	return res.RowsAffected()
}

// DeleteIDRange removes rows with id in [minID, maxID], used by the
// size-based retention pass.
func (s *Store) DeleteIDRange(ctx context.Context, minID, maxID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stmt := fmt.Sprintf("DELETE FROM %s WHERE id BETWEEN ? AND ?", s.tableName)
	res, err := s.conn.ExecContext(ctx, stmt, minID, maxID)
	if err != nil {
		return 0, apperr.Store("deleting id range", err)
	}
	return res.RowsAffected()
}

// GetMinMaxLogID returns the smallest and largest ids currently present,
// or (0, 0, false) when the table is empty.
func (s *Store) GetMinMaxLogID(ctx context.Context) (minID, maxID int64, ok bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var minVal, maxVal *int64
	stmt := fmt.Sprintf("SELECT MIN(id), MAX(id) FROM %s", s.tableName)
	if scanErr := s.conn.QueryRowContext(ctx, stmt).Scan(&minVal, &maxVal); scanErr != nil {
		return 0, 0, false, apperr.Store("reading id bounds", scanErr)
	}
	if minVal == nil || maxVal == nil {
		return 0, 0, false, nil
	}
	return *minVal, *maxVal, true, nil
}

// RowCount returns the number of rows currently in the log table.
func (s *Store) RowCount(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s", s.tableName)
	if err := s.conn.QueryRowContext(ctx, stmt).Scan(&n); err != nil {
		return 0, apperr.Store("counting rows", err)
	}
	return n, nil
}
