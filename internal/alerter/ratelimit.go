package alerter

import "time"

// rateWindow is the rolling admission window for RecordAlert
const rateWindow = 60 * time.Second

// slidingWindow admits at most limit events per rolling window. It is not
// safe for concurrent use; the manager lock guards it.
type slidingWindow struct {
	limit  int
	window time.Duration
	stamps []time.Time
}

func newSlidingWindow(limit int, window time.Duration) *slidingWindow {
	return &slidingWindow{
		limit:  limit,
		window: window,
		stamps: make([]time.Time, 0, limit),
	}
}

// Allow evicts stale admissions and records now if there is room
func (w *slidingWindow) Allow(now time.Time) bool {
	w.evict(now)
	if len(w.stamps) >= w.limit {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// Count returns the admissions inside the current window
func (w *slidingWindow) Count(now time.Time) int {
	w.evict(now)
	return len(w.stamps)
}

func (w *slidingWindow) Reset() {
	w.stamps = w.stamps[:0]
}

func (w *slidingWindow) evict(now time.Time) {
	cutoff := now.Add(-w.window)
	drop := 0
	for drop < len(w.stamps) && !w.stamps[drop].After(cutoff) {
		drop++
	}
	if drop > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[drop:]...)
	}
}
