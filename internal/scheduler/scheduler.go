package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// idleWait is how long the loop sleeps when nothing is scheduled
const idleWait = time.Hour

// Scheduler runs keyed one-shot tasks from a single goroutine.
// Scheduling a key that is already pending replaces it.
type Scheduler struct {
	log      zerolog.Logger
	mu       sync.Mutex
	tasks    taskHeap
	byKey    map[string]*task
	seq      uint64
	wake     chan struct{}
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

type task struct {
	key   string
	at    time.Time
	fn    func()
	seq   uint64
	index int
}

// New creates a scheduler and starts its loop
func New(log zerolog.Logger) *Scheduler {
	s := &Scheduler{
		log:     log.With().Str("component", "scheduler").Logger(),
		byKey:   make(map[string]*task),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.run()
	return s
}

// Schedule runs fn once after delay
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	if existing, ok := s.byKey[key]; ok {
		heap.Remove(&s.tasks, existing.index)
		delete(s.byKey, key)
	}
	s.seq++
	t := &task{key: key, at: time.Now().Add(delay), fn: fn, seq: s.seq}
	heap.Push(&s.tasks, t)
	s.byKey[key] = t
	s.mu.Unlock()

	s.log.Debug().Str("key", key).Dur("delay", delay).Msg("task scheduled")
	s.poke()
}

// Cancel removes a pending task, reporting whether one existed
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	t, ok := s.byKey[key]
	if ok {
		heap.Remove(&s.tasks, t.index)
		delete(s.byKey, key)
	}
	s.mu.Unlock()

	if ok {
		s.log.Debug().Str("key", key).Msg("task cancelled")
		s.poke()
	}
	return ok
}

// Pending returns the number of scheduled tasks
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop drops all pending tasks and waits for the loop to exit
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		<-s.stopped

		s.mu.Lock()
		s.tasks = nil
		s.byKey = make(map[string]*task)
		s.mu.Unlock()
	})
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run() {
	defer close(s.stopped)

	timer := time.NewTimer(idleWait)
	defer timer.Stop()

	for {
		for _, t := range s.popDue(time.Now()) {
			s.execute(t)
		}

		wait := s.nextWait()
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-s.done:
			return
		case <-s.wake:
		case <-timer.C:
		}
	}
}

func (s *Scheduler) popDue(now time.Time) []*task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*task
	for len(s.tasks) > 0 && !s.tasks[0].at.After(now) {
		t := heap.Pop(&s.tasks).(*task)
		delete(s.byKey, t.key)
		due = append(due, t)
	}
	return due
}

func (s *Scheduler) nextWait() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tasks) == 0 {
		return idleWait
	}
	wait := time.Until(s.tasks[0].at)
	if wait < 0 {
		wait = 0
	}
	return wait
}

func (s *Scheduler) execute(t *task) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("key", t.key).Interface("panic", r).Msg("scheduled task panicked")
		}
	}()
	t.fn()
}

// taskHeap orders tasks by due time, then by scheduling order
type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
