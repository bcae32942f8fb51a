package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/loglite/internal/compress"
	"github.com/Dicklesworthstone/loglite/internal/dictionary"
	"github.com/Dicklesworthstone/loglite/internal/query"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(Options{
		Path:      dbPath,
		TableName: "logs",
		Pragmas: map[string]string{
			"journal_mode": "WAL",
			"busy_timeout": "3000",
		},
		DictionaryColumns: []string{"status"},
		Compression:       compress.NewColumnSet(false, nil),
	})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.Initialize(context.Background()))
	require.NoError(t, st.ApplyMigration(context.Background(), Migration{
		Version: 1,
		Rollout: []string{
			`CREATE TABLE logs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				timestamp TEXT NOT NULL,
				status TEXT,
				message TEXT
			)`,
		},
		Rollback: []string{"DROP TABLE logs"},
	}))
	return st
}

func TestApplyMigrationIsIdempotent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	err := st.ApplyMigration(ctx, Migration{
		Version: 1,
		Rollout: []string{`CREATE TABLE logs (id INTEGER PRIMARY KEY)`},
	})
	require.NoError(t, err, "re-applying an already-applied version must be a no-op, not an error")

	versions, err := st.GetAppliedVersions(ctx)
	require.NoError(t, err)
	require.Equal(t, []int{1}, versions)
}

func TestRollbackMigrationDropsSchema(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.RollbackMigration(ctx, Migration{
		Version:  1,
		Rollback: []string{"DROP TABLE logs"},
	}))

	versions, err := st.GetAppliedVersions(ctx)
	require.NoError(t, err)
	require.Empty(t, versions)

	cols, err := st.Columns(ctx)
	require.NoError(t, err)
	require.Empty(t, cols, "table_info on a dropped table returns no rows")
}

func TestInsertAndQueryRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	dict, err := dictionary.Load(ctx, st)
	require.NoError(t, err)

	result, err := st.Insert(ctx, dict, []Record{
		{"timestamp": "2026-01-01T00:00:00Z", "status": "active", "message": "hello"},
		{"timestamp": "2026-01-02T00:00:00Z", "status": "active", "message": "world"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.Inserted)
	require.Empty(t, result.Rejected)

	queryResult, err := st.Query(ctx, []string{"*"}, query.Compiled{Where: "1=1"}, 0, 10)
	require.NoError(t, err)
	require.EqualValues(t, 2, queryResult.Total)
	require.Len(t, queryResult.Rows, 2)
	// newest first: timestamp DESC, id DESC
	require.Equal(t, "world", queryResult.Rows[0]["message"])
}

func TestInsertRejectsMissingRequiredColumnWithoutAbortingBatch(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	dict, err := dictionary.Load(ctx, st)
	require.NoError(t, err)

	result, err := st.Insert(ctx, dict, []Record{
		{"status": "active", "message": "missing timestamp"},
		{"timestamp": "2026-01-01T00:00:00Z", "status": "active", "message": "valid"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Inserted)
	require.Len(t, result.Rejected, 1)
	require.Equal(t, 0, result.Rejected[0].Index)
}

func TestDictionaryEncodedColumnStoresInternedID(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	dict, err := dictionary.Load(ctx, st)
	require.NoError(t, err)

	_, err = st.Insert(ctx, dict, []Record{
		{"timestamp": "2026-01-01T00:00:00Z", "status": "active", "message": "a"},
	})
	require.NoError(t, err)

	id, err := dict.GetOrCreate(ctx, "status", "active")
	require.NoError(t, err)
	require.Equal(t, 1, id)

	queryResult, err := st.Query(ctx, []string{"status"}, query.Compiled{Where: "1=1"}, 0, 10)
	require.NoError(t, err)
	require.Len(t, queryResult.Rows, 1)
	require.Equal(t, "1", fmt.Sprint(queryResult.Rows[0]["status"]), "the status column holds the interned id, not the raw value")
}

func TestDeleteIDRange(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	dict, err := dictionary.Load(ctx, st)
	require.NoError(t, err)

	_, err = st.Insert(ctx, dict, []Record{
		{"timestamp": "2026-01-01T00:00:00Z", "status": "a", "message": "1"},
		{"timestamp": "2026-01-02T00:00:00Z", "status": "a", "message": "2"},
		{"timestamp": "2026-01-03T00:00:00Z", "status": "a", "message": "3"},
	})
	require.NoError(t, err)

	minID, maxID, ok, err := st.GetMinMaxLogID(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	n, err := st.DeleteIDRange(ctx, minID, minID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	count, err := st.RowCount(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
	_ = maxID
}

func TestPingReportsLiveness(t *testing.T) {
	st := openTestStore(t)
	require.True(t, st.Ping(context.Background()))
}
