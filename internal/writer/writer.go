// Package writer implements loglite's single writer loop: drain a batch
// off the backlog, insert it in one transaction, publish the new max id to
// subscribers, repeat. It is the backlog's sole consumer; the dictionary is
// also reached by the POST /logs handler and serializes id assignment
// itself, so no cross-goroutine locking is needed here beyond what those
// packages already provide.
//
// Built around a drain -> process -> retry-with-backoff worker loop shape,
// adapted from a single-item channel read to a batched backlog.Drain, with
// github.com/cenkalti/backoff/v4 providing bounded exponential retry for
// transient insert failures.
package writer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Dicklesworthstone/loglite/internal/apperr"
	"github.com/Dicklesworthstone/loglite/internal/backlog"
	"github.com/Dicklesworthstone/loglite/internal/dictionary"
	"github.com/Dicklesworthstone/loglite/internal/logging"
	"github.com/Dicklesworthstone/loglite/internal/notifier"
	"github.com/Dicklesworthstone/loglite/internal/store"
)

// Metrics is the subset of internal/metrics.Recorder the writer reports to.
// Declared here (not imported from metrics) so metrics stays a leaf package
// with no dependents importing it just to satisfy this interface.
type Metrics interface {
	ObserveBatch(inserted, rejected int, duration time.Duration)
	ObserveBacklogDepth(depth int)
}

// Options configures a Writer.
type Options struct {
	Backlog      *backlog.Backlog
	Store        *store.Store
	Dictionary   *dictionary.Dictionary
	Notifier     *notifier.Notifier
	Metrics      Metrics
	BatchSize    int
	RetryMaxTime time.Duration
}

// Writer drains the backlog and persists batches to the store.
type Writer struct {
	backlog    *backlog.Backlog
	store      *store.Store
	dictionary *dictionary.Dictionary
	notifier   *notifier.Notifier
	metrics    Metrics
	batchSize  int
	retryMax   time.Duration
}

// New constructs a Writer from Options, applying conservative defaults for
// any zero-valued field.
func New(opts Options) *Writer {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 200
	}
	retryMax := opts.RetryMaxTime
	if retryMax <= 0 {
		retryMax = 30 * time.Second
	}
	return &Writer{
		backlog:    opts.Backlog,
		store:      opts.Store,
		dictionary: opts.Dictionary,
		notifier:   opts.Notifier,
		metrics:    opts.Metrics,
		batchSize:  batchSize,
		retryMax:   retryMax,
	}
}

// Run drains and persists batches until ctx is cancelled. It returns nil on
// clean cancellation: apperr.KindCancelled never escapes a supervised loop
// as a reportable failure.
func (w *Writer) Run(ctx context.Context) error {
	for {
		batch, err := w.backlog.Drain(ctx, w.batchSize)
		if err != nil {
			if apperr.Is(err, apperr.KindCancelled) {
				return nil
			}
			return err
		}
		if len(batch) == 0 {
			continue
		}

		started := time.Now()
		result, err := w.insertWithRetry(ctx, batch)
		if err != nil {
			if apperr.Is(err, apperr.KindCancelled) {
				return nil
			}
			logging.Default.Error("writer: batch insert failed permanently", "err", err, "batch_size", len(batch))
			continue
		}

		for _, rej := range result.Rejected {
			logging.Default.Warn("writer: rejected record", "index", rej.Index, "reason", rej.Reason)
		}
		if w.metrics != nil {
			w.metrics.ObserveBatch(result.Inserted, len(result.Rejected), time.Since(started))
			w.metrics.ObserveBacklogDepth(w.backlog.Len())
		}
		if result.MaxID > 0 {
			w.notifier.Set(result.MaxID)
		}
	}
}

func (w *Writer) insertWithRetry(ctx context.Context, batch []backlog.Record) (*store.InsertResult, error) {
	records := make([]store.Record, len(batch))
	for i, r := range batch {
		records[i] = store.Record(r)
	}

	var result *store.InsertResult
	operation := func() error {
		res, err := w.store.Insert(ctx, w.dictionary, records)
		if err != nil {
			return err
		}
		result = res
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = w.retryMax
	bctx := backoff.WithContext(b, ctx)

	if err := backoff.Retry(operation, bctx); err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Cancelled("writer insert retry", ctx.Err())
		}
		return nil, apperr.Store("inserting batch after retries", err)
	}
	return result, nil
}
