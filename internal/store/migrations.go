package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dicklesworthstone/loglite/internal/apperr"
)

// GetAppliedVersions returns every migration version recorded in the
// versions table, ascending.
func (s *Store) GetAppliedVersions(ctx context.Context) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.QueryContext(ctx, "SELECT version FROM versions ORDER BY version ASC")
	if err != nil {
		return nil, apperr.Store("reading applied migration versions", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, apperr.Store("scanning migration version", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// ApplyMigration runs one migration's Rollout statements inside a single
// transaction and records its version. Applying an already-applied version
// is a no-op, making rollout idempotent.
//
// Migration application is documented, not mutex-enforced, to run
// single-threaded at startup before the HTTP listener and harvesters
// start, relying on a "no concurrent writers yet" invariant instead of
// taking an extra lock.
func (s *Store) ApplyMigration(ctx context.Context, m Migration) error {
	applied, err := s.isApplied(ctx, m.Version)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range m.Rollout {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return apperr.Store(fmt.Sprintf("applying migration %d", m.Version), err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO versions (version, applied_at) VALUES (?, ?)",
			m.Version, now().Format("2006-01-02T15:04:05Z07:00")); err != nil {
			return apperr.Store(fmt.Sprintf("recording migration %d", m.Version), err)
		}
		return nil
	}, true)
}

// RollbackMigration runs one migration's Rollback statements and removes
// its version record. Rolling back a version that was never applied is a
// no-op.
func (s *Store) RollbackMigration(ctx context.Context, m Migration) error {
	applied, err := s.isApplied(ctx, m.Version)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range m.Rollback {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return apperr.Store(fmt.Sprintf("rolling back migration %d", m.Version), err)
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM versions WHERE version = ?", m.Version); err != nil {
			return apperr.Store(fmt.Sprintf("un-recording migration %d", m.Version), err)
		}
		return nil
	}, true)
}

func (s *Store) isApplied(ctx context.Context, version int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int
	err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM versions WHERE version = ?", version).Scan(&count)
	if err != nil {
		return false, apperr.Store("checking migration version", err)
	}
	return count > 0, nil
}

// withTx runs fn inside a transaction, rolling back on error. When
// invalidateColumns is true the column descriptor cache is dropped after a
// successful commit, since DDL executed in fn may have changed the schema
// — this applies equally to DDL applied by a rollout or rollback migration.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error, invalidateColumns bool) error {
	s.mu.Lock()
	tx, err := s.conn.BeginTx(ctx, nil)
	s.mu.Unlock()
	if err != nil {
		return apperr.Store("beginning transaction", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperr.Store("committing transaction", err)
	}
	if invalidateColumns {
		s.invalidateColumnCache()
	}
	return nil
}
