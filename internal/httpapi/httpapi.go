// Package httpapi implements loglite's HTTP surface:
// POST /logs, GET /logs, GET /health, GET /logs/stream (SSE).
//
// Built on go-chi/chi router and go-chi/cors middleware; SSE itself is
// written directly against net/http's Flusher, since the protocol is a few
// lines of "text/event-stream" framing that a dependency would not
// meaningfully simplify.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Dicklesworthstone/loglite/internal/apperr"
	"github.com/Dicklesworthstone/loglite/internal/backlog"
	"github.com/Dicklesworthstone/loglite/internal/dictionary"
	"github.com/Dicklesworthstone/loglite/internal/metrics"
	"github.com/Dicklesworthstone/loglite/internal/notifier"
	"github.com/Dicklesworthstone/loglite/internal/query"
	"github.com/Dicklesworthstone/loglite/internal/store"
)

// Options configures the router.
type Options struct {
	Store       *store.Store
	Dictionary  *dictionary.Dictionary
	Backlog     *backlog.Backlog
	Notifier    *notifier.Notifier
	Metrics     *metrics.Recorder
	SSEDebounce time.Duration
	SSELimit    int
}

// Server bundles the dependencies every handler needs.
type Server struct {
	store       *store.Store
	dictionary  *dictionary.Dictionary
	backlog     *backlog.Backlog
	notifier    *notifier.Notifier
	metrics     *metrics.Recorder
	sseDebounce time.Duration
	sseLimit    int
}

// requestID assigns every inbound request a fresh uuid rather than relying
// on chi's own request-id generator.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, uuid.New().String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// NewRouter builds the chi router exposing loglite's HTTP surface.
func NewRouter(opts Options) http.Handler {
	s := &Server{
		store:       opts.Store,
		dictionary:  opts.Dictionary,
		backlog:     opts.Backlog,
		notifier:    opts.Notifier,
		metrics:     opts.Metrics,
		sseDebounce: opts.SSEDebounce,
		sseLimit:    opts.SSELimit,
	}
	if s.sseDebounce <= 0 {
		s.sseDebounce = 500 * time.Millisecond
	}
	if s.sseLimit <= 0 {
		s.sseLimit = 200
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))
	if s.metrics != nil {
		r.Use(s.metricsMiddleware)
	}

	r.Get("/health", s.handleHealth)
	r.Post("/logs", s.handleIngest)
	r.Get("/logs", s.handleQuery)
	r.Get("/logs/stream", s.handleStream)
	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperr.Is(err, apperr.KindValidation):
		status = http.StatusBadRequest
	case apperr.Is(err, apperr.KindStore):
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// validateFields checks that every requested field name is a real column,
// the guarantee internal/query.Compile relies on to interpolate field
// names directly. Unknown fields are a 400, not a silent no-op.
func validateFields(known map[string]bool, filters []query.Filter, fields []string) error {
	for _, f := range filters {
		if !known[f.Field] {
			return apperr.Validation("unknown field \""+f.Field+"\"", nil)
		}
	}
	if len(fields) == 1 && fields[0] == "*" {
		return nil
	}
	for _, f := range fields {
		if !known[f] {
			return apperr.Validation("unknown field \""+f+"\"", nil)
		}
	}
	return nil
}
