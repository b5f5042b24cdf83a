package avrkernel

import "sync/atomic"

// TaskStatus is a task's position in the kernel's state machine.
type TaskStatus uint32

const (
	// StatusNone: slot is free.
	StatusNone TaskStatus = iota
	// StatusScheduled: allocated but not yet granted CPU time.
	StatusScheduled
	// StatusReady: eligible to run on the next tick.
	StatusReady
	// StatusYield: voluntarily parked with an ISR-decremented countdown.
	StatusYield
	// StatusSleep: parked with a task-self-decremented countdown.
	StatusSleep
	// StatusBlocked: administratively parked; only external action
	// resumes it.
	StatusBlocked
	// StatusMain: reserved for the idle/kernel slot at index MaxTasks.
	StatusMain
	// StatusKill: self-terminated; reaped on the next tick.
	StatusKill
)

// String renders the status name.
func (s TaskStatus) String() string {
	switch s {
	case StatusNone:
		return "None"
	case StatusScheduled:
		return "Scheduled"
	case StatusReady:
		return "Ready"
	case StatusYield:
		return "Yield"
	case StatusSleep:
		return "Sleep"
	case StatusBlocked:
		return "Blocked"
	case StatusMain:
		return "Main"
	case StatusKill:
		return "Kill"
	default:
		return "Unknown"
	}
}

// taskState is an atomic, CAS-able holder of a TaskStatus: a lock-free
// state machine so status reads (which tolerate staleness) never need to
// take the table's critical section, while writers still do for
// multi-field updates.
type taskState struct {
	v atomic.Uint32
}

func newTaskState(initial TaskStatus) *taskState {
	s := &taskState{}
	s.v.Store(uint32(initial))
	return s
}

// Load returns the current status atomically.
func (s *taskState) Load() TaskStatus { return TaskStatus(s.v.Load()) }

// Store atomically sets the status, bypassing transition validation. Used
// internally by the table/scheduler, which already know the transition is
// legal; external callers should go through the lifecycle verbs.
func (s *taskState) Store(v TaskStatus) { s.v.Store(uint32(v)) }

// TryTransition attempts a single CAS from `from` to `to`, returning
// whether it succeeded.
func (s *taskState) TryTransition(from, to TaskStatus) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}

// isSelectable reports whether a slot in this status may be chosen by the
// scheduler's round-robin walk: Blocked, None, and Kill are skipped.
func (s TaskStatus) isSelectable() bool {
	switch s {
	case StatusBlocked, StatusNone, StatusKill:
		return false
	default:
		return true
	}
}

// decrementsByTick reports whether the tick ISR decrements this slot's
// timeout: every slot not Blocked, None, or Sleep.
func (s TaskStatus) decrementsByTick() bool {
	switch s {
	case StatusBlocked, StatusNone, StatusSleep:
		return false
	default:
		return true
	}
}
