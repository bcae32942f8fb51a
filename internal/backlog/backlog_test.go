package backlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAddDrainFIFO(t *testing.T) {
	b := New(10)
	ctx := context.Background()

	require.NoError(t, b.Add(ctx, Record{"n": 1}))
	require.NoError(t, b.Add(ctx, Record{"n": 2}))
	require.NoError(t, b.Add(ctx, Record{"n": 3}))

	out, err := b.Drain(ctx, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, 1, out[0]["n"])
	require.Equal(t, 2, out[1]["n"])
	require.Equal(t, 1, b.Len())
}

func TestAddBlocksWhenFull(t *testing.T) {
	b := New(1)
	ctx := context.Background()
	require.NoError(t, b.Add(ctx, Record{"n": 1}))

	blocked := make(chan error, 1)
	go func() {
		blocked <- b.Add(ctx, Record{"n": 2})
	}()

	select {
	case <-blocked:
		t.Fatal("Add should have blocked while the backlog was full")
	case <-time.After(50 * time.Millisecond):
	}

	_, err := b.Drain(ctx, 1)
	require.NoError(t, err)

	select {
	case err := <-blocked:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Add did not unblock after Drain freed capacity")
	}
}

func TestAddCancelledByContext(t *testing.T) {
	b := New(1)
	require.NoError(t, b.Add(context.Background(), Record{"n": 1}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.Add(ctx, Record{"n": 2})
	require.Error(t, err)
}

func TestTryAddTracksDrops(t *testing.T) {
	b := New(1)
	require.True(t, b.TryAdd(Record{"n": 1}))
	require.False(t, b.TryAdd(Record{"n": 2}))
	require.EqualValues(t, 1, b.DroppedCount())
}

func TestHighWaterMark(t *testing.T) {
	b := New(5)
	ctx := context.Background()
	require.NoError(t, b.Add(ctx, Record{"n": 1}))
	require.NoError(t, b.Add(ctx, Record{"n": 2}))
	require.Equal(t, 2, b.HighWaterMark())
	_, err := b.Drain(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 2, b.HighWaterMark(), "high water mark must not decrease on drain")
}

func TestCloseUnblocksWaiters(t *testing.T) {
	b := New(1)
	done := make(chan struct {
		recs []Record
		err  error
	}, 1)
	go func() {
		recs, err := b.Drain(context.Background(), 1)
		done <- struct {
			recs []Record
			err  error
		}{recs, err}
	}()

	time.Sleep(20 * time.Millisecond)
	b.Close()

	select {
	case result := <-done:
		require.NoError(t, result.err)
		require.Empty(t, result.recs)
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock a pending Drain")
	}
}
