// Package vacuum implements loglite's periodic retention task: age out old
// rows, then (if still over budget) proportionally delete the oldest rows
// by id range, checkpointing and compacting the WAL around both passes.
//
// Grounded on the Python original's loglite/tasks/vacuum.py run_vacuum,
// ported from its asyncio periodic-task loop to a ticker-driven goroutine
// running its own maintenance pass off a time.Ticker inside a cancellable
// loop.
package vacuum

import (
	"context"
	"time"

	"github.com/Dicklesworthstone/loglite/internal/logging"
	"github.com/Dicklesworthstone/loglite/internal/metrics"
	"github.com/Dicklesworthstone/loglite/internal/query"
	"github.com/Dicklesworthstone/loglite/internal/store"
)

// Options configures a Task.
type Options struct {
	Store        *store.Store
	Metrics      *metrics.Recorder
	Interval     time.Duration
	MaxAge       time.Duration
	MaxSizeMB    float64
	TargetSizeMB float64
}

// Task runs the periodic retention pass.
type Task struct {
	store        *store.Store
	metrics      *metrics.Recorder
	interval     time.Duration
	maxAge       time.Duration
	maxSizeMB    float64
	targetSizeMB float64
}

// New constructs a Task from Options.
func New(opts Options) *Task {
	return &Task{
		store:        opts.Store,
		metrics:      opts.Metrics,
		interval:     opts.Interval,
		maxAge:       opts.MaxAge,
		maxSizeMB:    opts.MaxSizeMB,
		targetSizeMB: opts.TargetSizeMB,
	}
}

// Run ticks every Interval until ctx is cancelled, invoking RunOnce on each
// tick. The first pass runs immediately rather than waiting a full
// interval, so a freshly-started server doesn't carry an unbounded backlog
// of old rows for up to Interval before its first cleanup.
func (t *Task) Run(ctx context.Context) error {
	if err := t.RunOnce(ctx); err != nil {
		logging.Default.Error("vacuum: initial pass failed", "err", err)
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := t.RunOnce(ctx); err != nil {
				logging.Default.Error("vacuum: pass failed", "err", err)
			}
		}
	}
}

// RunOnce executes one retention pass: a WAL checkpoint first (so the size
// read driving the size-based pass reflects reality), then age-based
// deletion, then (if the database is still over MaxSizeMB) proportional
// size-based deletion down to TargetSizeMB, finishing with an incremental
// vacuum so the size reduction is observable immediately.
func (t *Task) RunOnce(ctx context.Context) error {
	if err := t.store.WALCheckpoint(ctx, "PASSIVE"); err != nil {
		return err
	}

	var purged int64

	if t.maxAge > 0 {
		known, err := t.store.ColumnNames(ctx)
		if err != nil {
			return err
		}
		if known[t.store.TimestampField()] {
			n, err := t.purgeByAge(ctx)
			if err != nil {
				return err
			}
			purged += n
		}
	}

	if t.maxSizeMB > 0 {
		n, err := t.purgeBySize(ctx)
		if err != nil {
			return err
		}
		purged += n
	}

	if err := t.store.IncrementalVacuum(ctx, 0); err != nil {
		return err
	}

	if t.metrics != nil {
		t.metrics.ObserveVacuum(purged)
	}
	if purged > 0 {
		logging.Default.Info("vacuum: purged rows", "count", purged)
	}
	return nil
}

func (t *Task) purgeByAge(ctx context.Context) (int64, error) {
	cutoff := timeNow().Add(-t.maxAge).UTC().Format(time.RFC3339)
	where := t.store.TimestampField() + " < ?"
	return t.store.Delete(ctx, query.Compiled{Where: where, Args: []any{cutoff}})
}

// purgeBySize implements the Python original's remove_pct formula: when
// current size exceeds MaxSizeMB, compute the fraction of rows to drop as
// (current-target)/current, and remove that fraction of the id range,
// oldest first.
func (t *Task) purgeBySize(ctx context.Context) (int64, error) {
	currentMB, err := t.store.GetSizeMB(ctx)
	if err != nil {
		return 0, err
	}
	if currentMB <= t.maxSizeMB {
		return 0, nil
	}

	target := t.targetSizeMB
	if target <= 0 || target >= currentMB {
		target = t.maxSizeMB * 0.75
	}
	removePct := (currentMB - target) / currentMB
	if removePct <= 0 {
		return 0, nil
	}
	if removePct > 1 {
		removePct = 1
	}

	minID, maxID, ok, err := t.store.GetMinMaxLogID(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	span := maxID - minID + 1
	cutoffID := minID + int64(float64(span)*removePct) - 1
	if cutoffID < minID {
		return 0, nil
	}
	if cutoffID > maxID {
		cutoffID = maxID
	}
	return t.store.DeleteIDRange(ctx, minID, cutoffID)
}

// timeNow is overridable in tests.
var timeNow = time.Now
