package httpapi

import (
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/Dicklesworthstone/loglite/internal/apperr"
	"github.com/Dicklesworthstone/loglite/internal/query"
	"github.com/Dicklesworthstone/loglite/internal/store"
)

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		class := strconv.Itoa(rec.status/100) + "xx"
		s.metrics.HTTPRequests.WithLabelValues(r.URL.Path, class).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// handleHealth implements GET /health: a liveness probe that also
// surfaces a snapshot of the writer/backlog/vacuum counters.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ok := s.store.Ping(ctx)

	payload := map[string]any{
		"ok":              ok,
		"backlog_depth":   s.backlog.Len(),
		"backlog_dropped": s.backlog.DroppedCount(),
	}
	if s.metrics != nil {
		payload["stats"] = s.metrics.Collect()
	}

	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, payload)
}

// handleIngest implements POST /logs: a JSON array (or single object) of log
// records, written straight to the store. Query and insert both operate
// directly on the store; the backlog exists for the harvester path, not for
// this endpoint (grounded on the original's handlers.py insert_log, which
// calls self.db.insert_log synchronously and returns {"id", "status"}).
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var records []store.Record
	single := false
	dec := json.NewDecoder(r.Body)
	var first json.RawMessage
	if err := dec.Decode(&first); err != nil {
		writeError(w, apperr.Validation("decoding request body", err))
		return
	}
	if err := json.Unmarshal(first, &records); err != nil {
		var rec store.Record
		if err := json.Unmarshal(first, &rec); err != nil {
			writeError(w, apperr.Validation("request body must be a log record or array of records", err))
			return
		}
		records = []store.Record{rec}
		single = true
	}

	result, err := s.store.Insert(r.Context(), s.dictionary, records)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(result.Rejected) > 0 && result.Inserted == 0 {
		writeError(w, apperr.Validation(result.Rejected[0].Reason, nil))
		return
	}

	if single {
		writeJSON(w, http.StatusOK, map[string]any{"id": result.MaxID, "status": "success"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       result.MaxID,
		"status":   "success",
		"inserted": result.Inserted,
		"rejected": result.Rejected,
	})
}

// handleQuery implements GET /logs: paginated, filtered retrieval.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		writeError(w, apperr.Validation("parsing query string", err))
		return
	}
	fields, offset, limit, filters, err := query.ParseQueryString(r.Form)
	if err != nil {
		writeError(w, err)
		return
	}

	known, err := s.store.ColumnNames(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := validateFields(known, filters, fields); err != nil {
		writeError(w, err)
		return
	}

	compiled := query.Compile(filters)
	result, err := s.store.Query(ctx, fields, compiled, offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":  result.Total,
		"offset": offset,
		"limit":  limit,
		"rows":   result.Rows,
	})
}

// handleStream implements GET /logs/stream: Server-Sent Events, pushing a
// debounced frame containing every row with id > pushedLogID (bounded by
// sseLimit) whenever new rows land, rather than one event per insert.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperr.Validation("streaming unsupported by this client", nil))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if s.metrics != nil {
		s.metrics.SSEConnections.Inc()
		defer s.metrics.SSEConnections.Dec()
	}

	sub := s.notifier.Subscribe()
	defer s.notifier.Unsubscribe(sub)

	ctx := r.Context()
	debounce := time.NewTimer(s.sseDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := false

	var pushedLogID int64
	if _, maxID, hasRows, err := s.store.GetMinMaxLogID(ctx); err == nil && hasRows {
		pushedLogID = maxID
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.C:
			if !pending {
				pending = true
				debounce.Reset(s.sseDebounce)
			}
		case <-debounce.C:
			pending = false
			if _, hasValue := s.notifier.Get(); !hasValue {
				continue
			}

			compiled := query.Compiled{Where: "id > ?", Args: []any{pushedLogID}}
			result, err := s.store.Query(ctx, []string{"*"}, compiled, 0, s.sseLimit)
			if err != nil {
				continue
			}
			if len(result.Rows) == 0 {
				continue
			}

			maxID := pushedLogID
			for _, row := range result.Rows {
				if id, ok := row["id"].(int64); ok && id > maxID {
					maxID = id
				}
			}

			payload, err := json.Marshal(result.Rows)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("event: update\ndata: ")); err != nil {
				return
			}
			if _, err := w.Write(payload); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
			pushedLogID = maxID
		}
	}
}
