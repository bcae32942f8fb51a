package writer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/loglite/internal/backlog"
	"github.com/Dicklesworthstone/loglite/internal/compress"
	"github.com/Dicklesworthstone/loglite/internal/dictionary"
	"github.com/Dicklesworthstone/loglite/internal/notifier"
	"github.com/Dicklesworthstone/loglite/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(store.Options{
		Path:        filepath.Join(t.TempDir(), "writer.db"),
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

func TestWriterDrainsBacklogAndNotifies(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	dict, err := dictionary.Load(ctx, st)
	require.NoError(t, err)

	bl := backlog.New(10)
	notif := notifier.New()
	w := New(Options{
		Backlog:    bl,
		Store:      st,
		Dictionary: dict,
		Notifier:   notif,
		BatchSize:  5,
	})

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(runCtx) }()

	require.NoError(t, bl.Add(ctx, backlog.Record{"timestamp": "2026-01-01T00:00:00Z", "message": "hello"}))

	require.Eventually(t, func() bool {
		_, ok := notif.Get()
		return ok
	}, time.Second, 10*time.Millisecond, "writer should notify after persisting a batch")

	count, err := st.RowCount(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("writer did not stop after context cancellation")
	}
}
