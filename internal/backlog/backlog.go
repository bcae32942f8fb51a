// Package backlog implements the bounded in-memory queue between harvesters
// and the Writer.
//
// Capacity is fixed at construction. Add blocks (applies backpressure) when
// the backlog is full rather than dropping — a message-queue source that
// cannot block its producer must instead maintain a visible counter rather
// than silently discarding, which is why DroppedCount exists even though
// Backlog itself never drops.
package backlog

import (
	"context"
	"sync"

	"github.com/Dicklesworthstone/loglite/internal/apperr"
)

// Record is an open mapping from column name to value, matching the
// LogRecord shape.
type Record map[string]any

// Backlog is a bounded FIFO queue of records awaiting persistence.
type Backlog struct {
	mu            sync.Mutex
	notFull       sync.Cond
	notEmpty      sync.Cond
	items         []Record
	capacity      int
	highWaterMark int
	droppedCount  uint64
	closed        bool
}

// New creates a Backlog with the given fixed capacity.
func New(capacity int) *Backlog {
	if capacity <= 0 {
		capacity = 1
	}
	b := &Backlog{capacity: capacity}
	b.notFull = *sync.NewCond(&b.mu)
	b.notEmpty = *sync.NewCond(&b.mu)
	return b
}

// Add enqueues a record, blocking while the backlog is full. It returns
// apperr.Cancelled if ctx is done before space becomes available, or if the
// backlog has been closed.
func (b *Backlog) Add(ctx context.Context, r Record) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			b.notFull.Broadcast()
			b.mu.Unlock()
		case <-done:
		}
	}()

	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.items) >= b.capacity && !b.closed {
		if ctx.Err() != nil {
			return apperr.Cancelled("backlog add", ctx.Err())
		}
		b.notFull.Wait()
	}
	if b.closed {
		return apperr.Cancelled("backlog add", nil)
	}
	if ctx.Err() != nil {
		return apperr.Cancelled("backlog add", ctx.Err())
	}

	b.items = append(b.items, r)
	if len(b.items) > b.highWaterMark {
		b.highWaterMark = len(b.items)
	}
	b.notEmpty.Signal()
	return nil
}

// TryAdd enqueues a record without blocking, returning false (and bumping
// DroppedCount) if the backlog is full. Used by edge sources that cannot
// suspend their producer.
func (b *Backlog) TryAdd(r Record) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || len(b.items) >= b.capacity {
		b.droppedCount++
		return false
	}
	b.items = append(b.items, r)
	if len(b.items) > b.highWaterMark {
		b.highWaterMark = len(b.items)
	}
	b.notEmpty.Signal()
	return true
}

// Drain atomically removes up to max records in FIFO order, blocking until
// at least one is available or ctx is cancelled.
func (b *Backlog) Drain(ctx context.Context, max int) ([]Record, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			b.notEmpty.Broadcast()
			b.mu.Unlock()
		case <-done:
		}
	}()

	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.items) == 0 && !b.closed {
		if ctx.Err() != nil {
			return nil, apperr.Cancelled("backlog drain", ctx.Err())
		}
		b.notEmpty.Wait()
	}
	if len(b.items) == 0 {
		if ctx.Err() != nil {
			return nil, apperr.Cancelled("backlog drain", ctx.Err())
		}
		return nil, nil
	}

	if max <= 0 || max > len(b.items) {
		max = len(b.items)
	}
	out := make([]Record, max)
	copy(out, b.items[:max])
	b.items = b.items[max:]
	b.notFull.Broadcast()
	return out, nil
}

// Len returns the current number of queued records.
func (b *Backlog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// HighWaterMark returns the largest queue length ever observed.
func (b *Backlog) HighWaterMark() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.highWaterMark
}

// DroppedCount returns the number of records rejected by TryAdd.
func (b *Backlog) DroppedCount() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.droppedCount
}

// Close unblocks any pending Add/Drain calls permanently. Subsequent Adds
// fail; Drain continues to return buffered records until empty.
func (b *Backlog) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.notFull.Broadcast()
	b.notEmpty.Broadcast()
}
