// Package store implements loglite's embedded relational database wrapper.
// It owns the *sql.DB connection, applies pragmas, runs schema migrations,
// serves inserts/queries/deletes, and exposes the maintenance primitives
// the vacuum task and /health endpoint need.
//
// Built as a mutex-guarded *sql.DB over modernc.org/sqlite (pure Go, no
// cgo), with pragmas applied via DSN query parameters at connection open.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Dicklesworthstone/loglite/internal/apperr"
	"github.com/Dicklesworthstone/loglite/internal/compress"
)

// FieldType is one of the declared column types a table may use.
type FieldType string

const (
	FieldInteger  FieldType = "INTEGER"
	FieldText     FieldType = "TEXT"
	FieldReal     FieldType = "REAL"
	FieldBlob     FieldType = "BLOB"
	FieldDatetime FieldType = "DATETIME"
	FieldJSON     FieldType = "JSON"
)

// ColumnDescriptor describes one table column, plus the DictionaryEncoded
// flag consulted by Insert (see DESIGN.md for how a column is marked
// dictionary-encoded, an open question the original left unresolved).
type ColumnDescriptor struct {
	Name              string
	DeclaredType      FieldType
	NotNull           bool
	Default           any
	PrimaryKey        bool
	DictionaryEncoded bool
}

// Migration is one applied-or-pending schema change.
type Migration struct {
	Version  int
	Rollout  []string
	Rollback []string
}

// Options configures a Store.
type Options struct {
	Path              string
	TableName         string
	Pragmas           map[string]string
	DictionaryColumns []string
	Compression       compress.ColumnSet
	// TimestampField names the column queries sort by and vacuum's
	// age-based pass filters on. Defaults to "timestamp".
	TimestampField string
}

// Store wraps the database connection. It is the exclusive owner of the
// connection; the dictionary holds a back-reference to it, never the other
// way around.
type Store struct {
	mu   sync.RWMutex
	conn *sql.DB

	path           string
	tableName      string
	pragmas        map[string]string
	timestampField string

	dictionaryColumns map[string]bool
	compression       compress.ColumnSet
	codec             *compress.Codec

	columnsMu    sync.Mutex
	columnsCache []ColumnDescriptor
}

// Open opens (creating if necessary) the sqlite database at opts.Path and
// applies the configured pragmas.
func Open(opts Options) (*Store, error) {
	if opts.TableName == "" {
		return nil, apperr.Config("table name is required", nil)
	}
	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, apperr.Store("creating database directory", err)
		}
	}

	dictCols := make(map[string]bool, len(opts.DictionaryColumns))
	for _, c := range opts.DictionaryColumns {
		dictCols[c] = true
	}

	codec, err := compress.NewCodec()
	if err != nil {
		return nil, apperr.Store("building compression codec", err)
	}

	timestampField := opts.TimestampField
	if timestampField == "" {
		timestampField = "timestamp"
	}

	s := &Store{
		path:              opts.Path,
		tableName:         opts.TableName,
		pragmas:           opts.Pragmas,
		timestampField:    timestampField,
		dictionaryColumns: dictCols,
		compression:       opts.Compression,
		codec:             codec,
	}
	if err := s.connect(); err != nil {
		return nil, err
	}
	return s, nil
}

// dsn builds the modernc.org/sqlite DSN with one `_pragma=name(value)`
// segment per configured pragma.
func (s *Store) dsn() string {
	var b strings.Builder
	fmt.Fprintf(&b, "file:%s", s.path)
	sep := "?"
	// Sort keys for deterministic DSNs (helps tests and log diffing).
	keys := make([]string, 0, len(s.pragmas))
	for k := range s.pragmas {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s_pragma=%s(%s)", sep, k, s.pragmas[k])
		sep = "&"
	}
	return b.String()
}

func (s *Store) connect() error {
	conn, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return apperr.Store("opening database", err)
	}
	conn.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway; avoids "database is locked" churn.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return apperr.Store("pinging database", err)
	}
	s.conn = conn
	return nil
}

// reconnectIfDead detects a dropped connection and reconnects transparently,
// re-applying pragmas.
func (s *Store) reconnectIfDead(ctx context.Context) error {
	if s.conn.PingContext(ctx) == nil {
		return nil
	}
	_ = s.conn.Close()
	return s.connect()
}

// Initialize ensures the versions and column_dictionary auxiliary tables
// exist. It does not load the dictionary cache itself — callers compose
// that via dictionary.Load(ctx, store) once Initialize has returned.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reconnectIfDead(ctx); err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS versions (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return apperr.Store("creating versions table", err)
	}
	if _, err := s.conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS column_dictionary (
			column TEXT NOT NULL,
			value TEXT NOT NULL,
			value_id INTEGER NOT NULL,
			PRIMARY KEY (column, value)
		)`); err != nil {
		return apperr.Store("creating column_dictionary table", err)
	}
	return nil
}

// Ping returns true iff a trivial round-trip succeeds.
func (s *Store) Ping(ctx context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.conn == nil {
		return false
	}
	var one int
	return s.conn.QueryRowContext(ctx, "SELECT 1").Scan(&one) == nil
}

// GetPragma reads back the current value of a pragma.
func (s *Store) GetPragma(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var value string
	row := s.conn.QueryRowContext(ctx, fmt.Sprintf("PRAGMA %s", name))
	if err := row.Scan(&value); err != nil {
		return "", apperr.Store(fmt.Sprintf("reading pragma %s", name), err)
	}
	return value, nil
}

// GetSizeMB returns the on-disk database size in megabytes, based on
// page_count * page_size, which is accurate immediately after a WAL
// checkpoint.
func (s *Store) GetSizeMB(ctx context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pageCount, pageSize int64
	if err := s.conn.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, apperr.Store("reading page_count", err)
	}
	if err := s.conn.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, apperr.Store("reading page_size", err)
	}
	return float64(pageCount*pageSize) / (1024 * 1024), nil
}

// FreelistPages returns the number of free (reclaimable) pages, consulted
// by the incremental-vacuum page budget.
func (s *Store) FreelistPages(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	if err := s.conn.QueryRowContext(ctx, "PRAGMA freelist_count").Scan(&n); err != nil {
		return 0, apperr.Store("reading freelist_count", err)
	}
	return n, nil
}

// WALCheckpoint runs "PRAGMA wal_checkpoint(mode)".
func (s *Store) WALCheckpoint(ctx context.Context, mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == "" {
		mode = "PASSIVE"
	}
	if _, err := s.conn.ExecContext(ctx, fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode)); err != nil {
		return apperr.Store("wal checkpoint", err)
	}
	return nil
}

// IncrementalVacuum reclaims up to pages free pages (auto_vacuum=INCREMENTAL
// mode). A pages value of 0 reclaims all currently free pages.
func (s *Store) IncrementalVacuum(ctx context.Context, pages int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stmt := "PRAGMA incremental_vacuum"
	if pages > 0 {
		stmt = fmt.Sprintf("PRAGMA incremental_vacuum(%d)", pages)
	}
	if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
		return apperr.Store("incremental vacuum", err)
	}
	return nil
}

// Vacuum runs a full VACUUM, compacting the file. It may be invoked
// manually for a full compaction outside the periodic incremental pass.
func (s *Store) Vacuum(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.conn.ExecContext(ctx, "VACUUM"); err != nil {
		return apperr.Store("vacuum", err)
	}
	return nil
}

// Close releases the underlying connection and compression codec.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codec.Close()
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// TableName returns the configured log table name.
func (s *Store) TableName() string { return s.tableName }

// TimestampField returns the column name used for ordering and age-based
// retention.
func (s *Store) TimestampField() string { return s.timestampField }

// now is overridable in tests that need deterministic migration timestamps.
var now = func() time.Time { return time.Now().UTC() }
