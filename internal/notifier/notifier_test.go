package notifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetBeforeSetHasNoValue(t *testing.T) {
	n := New()
	_, ok := n.Get()
	require.False(t, ok)
}

func TestSetWakesSubscriber(t *testing.T) {
	n := New()
	sub := n.Subscribe()
	defer n.Unsubscribe(sub)

	n.Set(42)

	select {
	case <-sub.C:
	case <-time.After(time.Second):
		t.Fatal("subscriber was not woken by Set")
	}

	v, ok := n.Get()
	require.True(t, ok)
	require.EqualValues(t, 42, v)
}

func TestSetCoalescesPendingWakeups(t *testing.T) {
	n := New()
	sub := n.Subscribe()
	defer n.Unsubscribe(sub)

	n.Set(1)
	n.Set(2)
	n.Set(3)

	select {
	case <-sub.C:
	case <-time.After(time.Second):
		t.Fatal("expected a coalesced wakeup")
	}

	select {
	case <-sub.C:
		t.Fatal("expected only one queued wakeup, got a second")
	default:
	}

	v, _ := n.Get()
	require.EqualValues(t, 3, v)
}

func TestUnsubscribeRemovesSubscriber(t *testing.T) {
	n := New()
	sub := n.Subscribe()
	require.Equal(t, 1, n.SubscriberCount())
	n.Unsubscribe(sub)
	require.Equal(t, 0, n.SubscriberCount())
}
