package vacuum

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/loglite/internal/compress"
	"github.com/Dicklesworthstone/loglite/internal/dictionary"
	"github.com/Dicklesworthstone/loglite/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.Options{
		Path:        filepath.Join(t.TempDir(), "vacuum.db"),
		TableName:   "logs",
		Pragmas:     map[string]string{"journal_mode": "WAL"},
		Compression: compress.NewColumnSet(false, nil),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.Initialize(ctx))
	require.NoError(t, st.ApplyMigration(ctx, store.Migration{
		Version: 1,
		Rollout: []string{
			`CREATE TABLE logs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				timestamp TEXT NOT NULL,
				message TEXT
			)`,
		},
	}))
	return st
}

func TestRunOncePurgesRowsOlderThanMaxAge(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	dict, err := dictionary.Load(ctx, st)
	require.NoError(t, err)

	_, err = st.Insert(ctx, dict, []store.Record{
		{"timestamp": time.Now().Add(-48 * time.Hour).UTC().Format(time.RFC3339), "message": "old"},
		{"timestamp": time.Now().UTC().Format(time.RFC3339), "message": "new"},
	})
	require.NoError(t, err)

	task := New(Options{
		Store:  st,
		MaxAge: 24 * time.Hour,
	})
	require.NoError(t, task.RunOnce(ctx))

	count, err := st.RowCount(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestRunOnceNoopWhenUnderBudget(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	dict, err := dictionary.Load(ctx, st)
	require.NoError(t, err)

	_, err = st.Insert(ctx, dict, []store.Record{
		{"timestamp": "2026-01-01T00:00:00Z", "message": "hello"},
	})
	require.NoError(t, err)

	task := New(Options{Store: st, MaxSizeMB: 10_000})
	require.NoError(t, task.RunOnce(ctx))

	count, err := st.RowCount(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}
