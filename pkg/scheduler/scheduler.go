package scheduler

import (
	"container/heap"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler runs task callbacks sequentially on one goroutine, driven by
// a single timer.
type Scheduler struct {
	mu     sync.Mutex
	logger *slog.Logger

	tasks map[string]*Task
	queue taskQueue

	timer *time.Timer
	// armedAt is the wake time the timer is currently set for; zero when
	// the timer is disarmed.
	armedAt time.Time
	// generation counts timer re-arms that changed the next wake time.
	generation uint64

	stamp atomic.Uint64

	wakeCh  chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	stopped bool

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a scheduler and starts its goroutine.
// Pass nil to disable operational logging.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Scheduler{
		logger: logger,
		tasks:  make(map[string]*Task),
		timer:  time.NewTimer(time.Hour),
		wakeCh: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		now:    time.Now,
	}
	s.timer.Stop()

	go s.run()
	return s
}

// NewTask registers a task. The id must be unique: a previous task with
// the same id is closed first. The task starts disarmed; arm it with
// Delay or ScheduleAt. Arguments for the callback are captured in its
// closure.
func (s *Scheduler) NewTask(id, owner string, fn func()) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.tasks[id]; ok {
		s.closeTaskLocked(old)
	}

	t := &Task{
		id:    id,
		owner: owner,
		fn:    fn,
		s:     s,
		index: -1,
	}
	s.tasks[id] = t
	return t
}

// Task returns the registered task with the given id, if any.
func (s *Scheduler) Task(id string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t, ok
}

// CloseOwner closes every task belonging to the given owner. Called when
// a logical device (gateway, discovery run) stops.
func (s *Scheduler) CloseOwner(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t.owner == owner {
			s.closeTaskLocked(t)
		}
	}
	s.rearmLocked()
}

// NextStamp returns a monotonically increasing run-stamp.
func (s *Scheduler) NextStamp() uint64 {
	return s.stamp.Add(1)
}

// NextWake returns the wake time the external timer is armed for.
// ok is false when no task is armed.
func (s *Scheduler) NextWake() (wake time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armedAt, !s.armedAt.IsZero()
}

// Generation returns the number of timer re-arms that changed the next
// wake time. A schedule request that did not move the minimum leaves the
// generation untouched.
func (s *Scheduler) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// TaskCount returns the number of registered tasks.
func (s *Scheduler) TaskCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Stop shuts the scheduler down and closes all tasks. Blocks until the
// scheduler goroutine has exited; no callback runs after Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for _, t := range s.tasks {
		s.closeTaskLocked(t)
	}
	s.timer.Stop()
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh
}

// run is the scheduler goroutine: wait for the next wake, run whatever
// is due, re-arm.
func (s *Scheduler) run() {
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			return
		case <-s.timer.C:
		case <-s.wakeCh:
		}
		s.dispatch()
	}
}

// dispatch runs all tasks whose wake time has passed, in ascending wake
// order, then re-arms the timer to the new minimum.
func (s *Scheduler) dispatch() {
	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}

		now := s.now()
		if s.queue.Len() == 0 || s.queue[0].wakeAt.After(now) {
			// Force a fresh Reset even if the minimum is unchanged: the
			// fire that woke us consumed the outstanding timer.
			s.armedAt = time.Time{}
			s.rearmLocked()
			s.mu.Unlock()
			return
		}

		t := heap.Pop(&s.queue).(*Task)
		t.armed = false
		fn := t.fn
		s.mu.Unlock()

		s.runCallback(t, fn)
	}
}

// runCallback executes one task callback, containing panics: a panicking
// task is logged and treated as if it ran; it stops only because it
// never re-armed.
func (s *Scheduler) runCallback(t *Task, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task callback panicked",
				"task", t.id, "owner", t.owner, "panic", r)
		}
	}()
	fn()
}

// kick wakes the scheduler goroutine without waiting for the timer.
func (s *Scheduler) kick() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// rearmLocked re-arms the external timer to the minimum wake time, or
// disarms it when nothing is pending. Arming to a time later than the
// current target never happens: the target always equals the heap
// minimum. Caller holds s.mu.
func (s *Scheduler) rearmLocked() {
	if s.stopped {
		return
	}

	if s.queue.Len() == 0 {
		if !s.armedAt.IsZero() {
			s.timer.Stop()
			s.armedAt = time.Time{}
			s.generation++
		}
		return
	}

	next := s.queue[0].wakeAt
	if !s.armedAt.IsZero() && s.armedAt.Equal(next) {
		return
	}

	s.timer.Stop()
	d := next.Sub(s.now())
	if d < 0 {
		d = 0
	}
	s.timer.Reset(d)
	s.armedAt = next
	s.generation++
}

// closeTaskLocked removes a task from the registry and the queue.
// Caller holds s.mu.
func (s *Scheduler) closeTaskLocked(t *Task) {
	if t.closed {
		return
	}
	t.closed = true
	if t.index >= 0 {
		heap.Remove(&s.queue, t.index)
		t.armed = false
	}
	delete(s.tasks, t.id)
}

// taskQueue is a min-heap of armed tasks ordered by wake time.
type taskQueue []*Task

func (q taskQueue) Len() int           { return len(q) }
func (q taskQueue) Less(i, j int) bool { return q[i].wakeAt.Before(q[j].wakeAt) }

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	t := x.(*Task)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
