package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsTaskAfterDelay(t *testing.T) {
	s := New(zerolog.Nop())
	defer s.Stop()

	fired := make(chan time.Time, 1)
	start := time.Now()
	s.Schedule("a", 20*time.Millisecond, func() { fired <- time.Now() })

	select {
	case at := <-fired:
		assert.GreaterOrEqual(t, at.Sub(start), 20*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_CancelPreventsRun(t *testing.T) {
	s := New(zerolog.Nop())
	defer s.Stop()

	var ran atomic.Bool
	s.Schedule("a", 30*time.Millisecond, func() { ran.Store(true) })
	require.Equal(t, 1, s.Pending())

	assert.True(t, s.Cancel("a"))
	assert.False(t, s.Cancel("a"))
	time.Sleep(80 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestScheduler_RescheduleReplacesKey(t *testing.T) {
	s := New(zerolog.Nop())
	defer s.Stop()

	var mu sync.Mutex
	var order []string
	s.Schedule("k", time.Hour, func() {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
	})
	s.Schedule("k", 10*time.Millisecond, func() {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
	})
	assert.Equal(t, 1, s.Pending())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"second"}, order)
	mu.Unlock()
}

func TestScheduler_OrdersByDueTime(t *testing.T) {
	s := New(zerolog.Nop())
	defer s.Stop()

	results := make(chan string, 3)
	s.Schedule("late", 60*time.Millisecond, func() { results <- "late" })
	s.Schedule("early", 10*time.Millisecond, func() { results <- "early" })
	s.Schedule("mid", 30*time.Millisecond, func() { results <- "mid" })

	var got []string
	for i := 0; i < 3; i++ {
		select {
		case r := <-results:
			got = append(got, r)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks")
		}
	}
	assert.Equal(t, []string{"early", "mid", "late"}, got)
}

func TestScheduler_PanicDoesNotStopLoop(t *testing.T) {
	s := New(zerolog.Nop())
	defer s.Stop()

	done := make(chan struct{})
	s.Schedule("boom", 0, func() { panic("boom") })
	s.Schedule("ok", 10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop stopped after panic")
	}
}

func TestScheduler_StopDropsPending(t *testing.T) {
	s := New(zerolog.Nop())
	var ran atomic.Bool
	s.Schedule("a", 20*time.Millisecond, func() { ran.Store(true) })
	s.Stop()
	s.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, ran.Load())
	assert.Equal(t, 0, s.Pending())
}
