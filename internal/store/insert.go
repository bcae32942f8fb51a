package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/Dicklesworthstone/loglite/internal/apperr"
	"github.com/Dicklesworthstone/loglite/internal/dictionary"
)

// Record is one harvested log line, decoded into field->value pairs.
type Record map[string]any

// RejectedRecord records why one record in a batch was dropped.
type RejectedRecord struct {
	Index  int
	Reason string
}

// InsertResult summarizes a batch insert: invalid records are dropped
// without aborting the rest of the batch.
type InsertResult struct {
	Inserted int
	Rejected []RejectedRecord
	MaxID    int64
}

// Insert writes a batch of records in a single transaction. A record
// missing a required column, or whose dictionary substitution fails, is
// skipped and recorded in Rejected; it never aborts the rest of the batch
// (grounded on the Python original's database.py insert_logs, which
// continues past a single bad row rather than failing the whole call).
func (s *Store) Insert(ctx context.Context, dict *dictionary.Dictionary, records []Record) (*InsertResult, error) {
	cols, err := s.Columns(ctx)
	if err != nil {
		return nil, err
	}

	result := &InsertResult{}

	// Rows are prepared before the transaction opens: dictionary substitution
	// persists new entries through the store's single pooled connection,
	// which an open transaction would be holding.
	type preparedRow struct {
		index       int
		values      []any
		columnNames []string
	}
	prepared := make([]preparedRow, 0, len(records))
	for i, rec := range records {
		values, columnNames, rejectReason := s.prepareRow(ctx, dict, cols, rec)
		if rejectReason != "" {
			result.Rejected = append(result.Rejected, RejectedRecord{Index: i, Reason: rejectReason})
			continue
		}
		prepared = append(prepared, preparedRow{index: i, values: values, columnNames: columnNames})
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		for _, row := range prepared {
			placeholders := strings.Repeat("?,", len(row.values))
			placeholders = strings.TrimSuffix(placeholders, ",")
			stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
				s.tableName, strings.Join(row.columnNames, ","), placeholders)

			res, err := tx.ExecContext(ctx, stmt, row.values...)
			if err != nil {
				result.Rejected = append(result.Rejected, RejectedRecord{Index: row.index, Reason: err.Error()})
				continue
			}
			result.Inserted++
			if id, err := res.LastInsertId(); err == nil && id > result.MaxID {
				result.MaxID = id
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// prepareRow validates rec against the active column set, substitutes
// dictionary-encoded values for their interned ids, and applies configured
// column compression. An empty rejectReason means the row is ready to bind.
func (s *Store) prepareRow(ctx context.Context, dict *dictionary.Dictionary, cols []ColumnDescriptor, rec Record) (values []any, columnNames []string, rejectReason string) {
	for _, col := range cols {
		if col.PrimaryKey {
			continue // autoincrement id, never supplied by the caller
		}

		value, present := rec[col.Name]
		if !present || value == nil {
			if col.NotNull && col.Default == nil {
				return nil, nil, fmt.Sprintf("missing required column %q", col.Name)
			}
			if col.Default == nil {
				continue // column omitted, let sqlite apply its own default/NULL
			}
			value = col.Default
		}

		if col.DictionaryEncoded {
			id, err := dict.GetOrCreate(ctx, col.Name, value)
			if err != nil {
				return nil, nil, fmt.Sprintf("dictionary lookup for %q: %v", col.Name, err)
			}
			value = id
		} else if col.DeclaredType == FieldJSON {
			encoded, err := json.Marshal(value)
			if err != nil {
				return nil, nil, fmt.Sprintf("encoding json column %q: %v", col.Name, err)
			}
			value = string(encoded)
		}

		if s.compression.Applies(col.Name) {
			raw, ok := toBytes(value)
			if ok {
				value = s.codec.Compress(raw)
			}
		}

		values = append(values, value)
		columnNames = append(columnNames, col.Name)
	}
	return values, columnNames, ""
}

func toBytes(value any) ([]byte, bool) {
	switch v := value.(type) {
	case string:
		return []byte(v), true
	case []byte:
		return v, true
	default:
		return nil, false
	}
}

// LoadColumnDictionary implements dictionary.Persister, streaming every
// persisted (column, value, value_id) row for cache warm-up at startup.
func (s *Store) LoadColumnDictionary(ctx context.Context) (<-chan dictionary.Entry, error) {
	s.mu.RLock()
	rows, err := s.conn.QueryContext(ctx, "SELECT column, value, value_id FROM column_dictionary")
	s.mu.RUnlock()
	if err != nil {
		return nil, apperr.Store("loading column dictionary", err)
	}

	out := make(chan dictionary.Entry)
	go func() {
		defer close(out)
		defer rows.Close()
		for rows.Next() {
			var column, encoded string
			var valueID int
			if err := rows.Scan(&column, &encoded, &valueID); err != nil {
				return
			}
			var value any
			if err := json.Unmarshal([]byte(encoded), &value); err != nil {
				continue
			}
			select {
			case out <- dictionary.Entry{Column: column, Value: value, ValueID: valueID}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// InsertColumnDictionaryValue implements dictionary.Persister. Values are
// stored JSON-encoded so that reloading the dictionary on restart yields
// the same float64-folded representation dictionary.normalize produces for
// values decoded fresh off the wire.
func (s *Store) InsertColumnDictionaryValue(ctx context.Context, column string, value any, valueID int) error {
	encoded, err := json.Marshal(value)
	if err != nil {
		return apperr.Store("encoding column dictionary value", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.conn.ExecContext(ctx,
		"INSERT OR REPLACE INTO column_dictionary (column, value, value_id) VALUES (?, ?, ?)",
		column, string(encoded), valueID)
	if err != nil {
		return apperr.Store("persisting column dictionary entry", err)
	}
	return nil
}
