package httpapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/Dicklesworthstone/loglite/internal/backlog"
	"github.com/Dicklesworthstone/loglite/internal/compress"
	"github.com/Dicklesworthstone/loglite/internal/dictionary"
	"github.com/Dicklesworthstone/loglite/internal/notifier"
	"github.com/Dicklesworthstone/loglite/internal/store"
)

func newTestServer(t *testing.T) (http.Handler, *store.Store, *backlog.Backlog) {
	t.Helper()
	st, err := store.Open(store.Options{
		Path:        filepath.Join(t.TempDir(), "httpapi.db"),
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

	dict, err := dictionary.Load(ctx, st)
	require.NoError(t, err)

	bl := backlog.New(10)
	router := NewRouter(Options{
		Store:       st,
		Dictionary:  dict,
		Backlog:     bl,
		Notifier:    notifier.New(),
		SSEDebounce: 10 * time.Millisecond,
	})
	return router, st, bl
}

func TestHandleIngestAcceptsSingleObject(t *testing.T) {
	router, st, _ := newTestServer(t)

	body := bytes.NewBufferString(`{"timestamp":"2026-01-01T00:00:00Z","message":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/logs", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, "success", payload["status"])
	require.EqualValues(t, 1, payload["id"])

	n, err := st.RowCount(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestHandleIngestAcceptsArray(t *testing.T) {
	router, st, _ := newTestServer(t)

	body := bytes.NewBufferString(`[{"timestamp":"2026-01-01T00:00:00Z","message":"a"},{"timestamp":"2026-01-01T00:00:01Z","message":"b"}]`)
	req := httptest.NewRequest(http.MethodPost, "/logs", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, "success", payload["status"])
	require.EqualValues(t, 2, payload["inserted"])

	n, err := st.RowCount(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func TestHandleIngestRejectsMalformedBody(t *testing.T) {
	router, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/logs", bytes.NewBufferString(`not json`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQueryRejectsUnknownField(t *testing.T) {
	router, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/logs?nope==active", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQueryReturnsInsertedRows(t *testing.T) {
	router, st, _ := newTestServer(t)
	ctx := context.Background()

	_, err := st.Insert(ctx, nil, []store.Record{
		{"timestamp": "2026-01-01T00:00:00Z", "message": "hello"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/logs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.EqualValues(t, 1, payload["total"])
}

func TestHandleHealthReportsOK(t *testing.T) {
	router, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, true, payload["ok"])
}
