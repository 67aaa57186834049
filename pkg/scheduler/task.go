package scheduler

import (
	"container/heap"
	"time"
)

// Task is one schedulable unit of work. A task is owned by exactly one
// logical device and is destroyed when that device stops (CloseOwner) or
// when closed explicitly.
type Task struct {
	id    string
	owner string
	fn    func()

	s *Scheduler

	wakeAt time.Time
	armed  bool
	closed bool
	index  int // heap index, -1 when not queued
}

// ID returns the task id.
func (t *Task) ID() string { return t.id }

// Owner returns the owning device reference.
func (t *Task) Owner() string { return t.owner }

// Delay arms the task to run d from now. If the task is already armed
// for an earlier time, the earlier time wins.
func (t *Task) Delay(d time.Duration) {
	t.ScheduleAt(t.s.now().Add(d))
}

// ScheduleAt arms the task to run at the given time. If the task is
// already armed for an earlier time, the earlier time wins; use
// Reschedule to replace unconditionally.
func (t *Task) ScheduleAt(at time.Time) {
	t.schedule(at, false)
}

// Reschedule arms the task to run at the given time, replacing any
// previously armed time.
func (t *Task) Reschedule(at time.Time) {
	t.schedule(at, true)
}

func (t *Task) schedule(at time.Time, replace bool) {
	s := t.s
	s.mu.Lock()

	if t.closed || s.stopped {
		s.mu.Unlock()
		return
	}

	if t.armed {
		if !replace && !at.Before(t.wakeAt) {
			// Earliest wins: a later request is a no-op.
			s.mu.Unlock()
			return
		}
		t.wakeAt = at
		heap.Fix(&s.queue, t.index)
	} else {
		t.wakeAt = at
		t.armed = true
		heap.Push(&s.queue, t)
	}

	s.rearmLocked()
	due := !t.wakeAt.After(s.now())
	s.mu.Unlock()

	if due {
		s.kick()
	}
}

// Suspend disarms the task without destroying it.
func (t *Task) Suspend() {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.closed || !t.armed {
		return
	}
	heap.Remove(&s.queue, t.index)
	t.armed = false
	s.rearmLocked()
}

// Close destroys the task. A closed task never runs again and its id may
// be reused.
func (t *Task) Close() {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeTaskLocked(t)
	s.rearmLocked()
}

// Armed reports whether the task is armed and, if so, for when.
func (t *Task) Armed() (time.Time, bool) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if !t.armed {
		return time.Time{}, false
	}
	return t.wakeAt, true
}
