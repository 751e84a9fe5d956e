// ABOUTME: Tests for the keyed timer registry
// ABOUTME: Uses short real timers; verifies replace, cancel and close semantics

package sched

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_Fires(t *testing.T) {
	s := New(nil)
	defer s.Close()

	fired := make(chan struct{})
	s.Schedule(Key{PartyID: 1, Kind: KindAutoFinalize}, 10*time.Millisecond, func() {
		close(fired)
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	assert.False(t, s.Pending(Key{PartyID: 1, Kind: KindAutoFinalize}))
}

func TestScheduler_RescheduleReplaces(t *testing.T) {
	s := New(nil)
	defer s.Close()

	var count atomic.Int32
	key := Key{PartyID: 1, Kind: KindAutoFinalize}

	// Re-arm repeatedly; only the last timer may fire.
	for i := 0; i < 5; i++ {
		s.Schedule(key, 20*time.Millisecond, func() { count.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
}

func TestScheduler_Cancel(t *testing.T) {
	s := New(nil)
	defer s.Close()

	key := Key{PartyID: 1, Kind: KindAutoFinalize}
	s.Schedule(key, 20*time.Millisecond, func() {
		t.Error("cancelled timer fired")
	})

	require.True(t, s.Cancel(key))
	assert.False(t, s.Cancel(key), "second cancel finds nothing")

	time.Sleep(50 * time.Millisecond)
}

func TestScheduler_CancelAll(t *testing.T) {
	s := New(nil)
	defer s.Close()

	s.Schedule(Key{PartyID: 1, Kind: KindAutoFinalize}, 20*time.Millisecond, func() {
		t.Error("cancelled timer fired")
	})
	s.Schedule(Key{PartyID: 1, Kind: KindGreeting}, 20*time.Millisecond, func() {
		t.Error("cancelled timer fired")
	})

	otherFired := make(chan struct{})
	s.Schedule(Key{PartyID: 2, Kind: KindAutoFinalize}, 20*time.Millisecond, func() {
		close(otherFired)
	})

	s.CancelAll(1)
	assert.False(t, s.Pending(Key{PartyID: 1, Kind: KindAutoFinalize}))
	assert.False(t, s.Pending(Key{PartyID: 1, Kind: KindGreeting}))

	select {
	case <-otherFired:
	case <-time.After(time.Second):
		t.Fatal("unrelated party's timer was cancelled too")
	}
}

func TestScheduler_Close(t *testing.T) {
	s := New(nil)

	s.Schedule(Key{PartyID: 1, Kind: KindAutoFinalize}, 20*time.Millisecond, func() {
		t.Error("timer fired after close")
	})
	s.Close()

	// Scheduling after close is a no-op.
	s.Schedule(Key{PartyID: 2, Kind: KindAutoFinalize}, time.Millisecond, func() {
		t.Error("scheduled after close")
	})

	time.Sleep(50 * time.Millisecond)
}
