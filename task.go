package avrkernel

import (
	"reflect"
	"sync"
)

// TaskFunc is a task's entry point: a plain function pointer, no dynamic
// dispatch. It's handed the kernel and its own id so it can call back into
// the lifecycle verbs (Yield, Sleep, Kill, ...).
type TaskFunc func(k *Kernel, id TaskID)

// TaskControl is one row of the task table: context, status, scheduling
// bookkeeping, and the carved stack region it exclusively owns.
type TaskControl struct {
	context        Context
	status         *taskState
	userData       any
	entry          TaskFunc
	timeout        int16
	defaultTimeout int16
	id             TaskID
	stack          stackRegion
	priority       int8
	cachedPriority int8

	// runtime is the host-simulation baton (isr.go); nil for a free slot.
	runtime *taskRuntime
}

// Status returns the slot's current status. Safe without the table's
// critical section: readers that tolerate staleness may read without a
// lock.
func (t *TaskControl) Status() TaskStatus { return t.status.Load() }

// ID returns the slot's task id, or NoTask if it's free.
func (t *TaskControl) ID() TaskID { return t.id }

// Priority returns the slot's current (possibly decremented) priority.
func (t *TaskControl) Priority() int8 { return t.priority }

// UserData returns the slot's caller-supplied user-data pointer.
func (t *TaskControl) UserData() any { return t.userData }

// SetUserData stores a caller-supplied user-data pointer, captured either
// on the task's own stack or here in module-level memory.
func (t *TaskControl) SetUserData(v any) { t.userData = v }

// Table is the fixed-size, process-wide array of task control records:
// MaxTasks regular slots plus one permanent main slot at MainID(). All
// writes go through a critical section; reads tolerate staleness.
type Table struct {
	mu        sync.Mutex
	slots     []TaskControl // len == MaxTasks+1, index MaxTasks is main
	usedCount int
}

// NewTable allocates a fresh, all-free task table sized by the current
// MaxTasks.
func NewTable() *Table {
	tb := &Table{slots: make([]TaskControl, MaxTasks+1)}
	for i := range tb.slots {
		tb.slots[i] = TaskControl{id: NoTask, status: newTaskState(StatusNone)}
	}
	return tb
}

// Slot returns the control record for id, or nil if id is out of range.
// The returned pointer is stable for the table's lifetime; callers must
// not assume stability of the *fields*, only of the pointer's status
// reads (see Status).
func (tb *Table) Slot(id TaskID) *TaskControl {
	if id < 0 || int(id) >= len(tb.slots) {
		return nil
	}
	return &tb.slots[id]
}

// Len returns the number of slots, including the main slot.
func (tb *Table) Len() int { return len(tb.slots) }

// Attach writes a task's entry function into slot id: sets PC=fn, SP to
// the top of the carved stack region, status=Scheduled,
// timeout=0, priority=0. Only valid for id in [0, MaxTasks); the main
// slot is installed via installMain, not Attach. Refuses (no-op,
// returning an error) on an invalid id, a nil fn, or a stack region that
// would fall outside the simulated RAM arena.
func (tb *Table) Attach(fn TaskFunc, id TaskID) error {
	if fn == nil {
		return ErrNilEntry
	}
	if id < 0 || int(id) >= MaxTasks {
		return ErrInvalidTaskID
	}
	region, err := carveStack(int(id))
	if err != nil {
		return err
	}

	tb.mu.Lock()
	defer tb.mu.Unlock()

	slot := &tb.slots[id]
	slot.context = newContext()
	slot.context.PC = WordOf(uint16(reflect.ValueOf(fn).Pointer()))
	slot.context.SP = WordOf(uint16(region.top))
	slot.status = newTaskState(StatusScheduled)
	slot.entry = fn
	slot.timeout = 0
	slot.defaultTimeout = 0
	slot.id = id
	slot.stack = region
	slot.priority = 0
	slot.cachedPriority = 0
	slot.userData = nil
	slot.runtime = newTaskRuntime()

	if int(id)+1 > tb.usedCount {
		tb.usedCount = int(id) + 1
	}
	return nil
}

// Schedule is the first-fit wrapper over Attach (Attach is id-chosen,
// Schedule is first-fit): it finds the lowest-indexed None slot and
// attaches fn there.
func (tb *Table) Schedule(fn TaskFunc) (TaskID, error) {
	tb.mu.Lock()
	var free TaskID = NoTask
	for i := 0; i < MaxTasks; i++ {
		if tb.slots[i].status.Load() == StatusNone {
			free = TaskID(i)
			break
		}
	}
	tb.mu.Unlock()

	if free == NoTask {
		return NoTask, ErrTaskTableFull
	}
	if err := tb.Attach(fn, free); err != nil {
		return NoTask, err
	}
	return free, nil
}

// installMain installs the main/idle slot at MainID(), used by
// DispatchTasks/StartTasks. Unlike Attach, it does not require a carved
// stack to fit the normal (slot < MaxTasks) bound, since the main slot's
// region is carved at index MaxTasks.
func (tb *Table) installMain(fn TaskFunc, priority int8) error {
	region, err := carveStack(MaxTasks)
	if err != nil {
		return err
	}
	tb.mu.Lock()
	defer tb.mu.Unlock()

	slot := &tb.slots[MaxTasks]
	slot.context = newContext()
	slot.context.PC = WordOf(uint16(reflect.ValueOf(fn).Pointer()))
	slot.context.SP = WordOf(uint16(region.top))
	slot.status = newTaskState(StatusMain)
	slot.entry = fn
	slot.timeout = 0
	slot.defaultTimeout = 0
	slot.id = MainID()
	slot.stack = region
	slot.priority = priority
	slot.cachedPriority = priority
	slot.runtime = newTaskRuntime()
	return nil
}

// reap clears a slot back to None in place: Context zeroed, stack handle
// zeroed, id=-1, status=None, used count decremented. Called either by
// KillImmediate or by the scheduler during policy selection.
func (tb *Table) reap(id TaskID) {
	slot := tb.Slot(id)
	if slot == nil {
		return
	}
	slot.context = newContext()
	slot.stack = stackRegion{}
	slot.entry = nil
	slot.userData = nil
	slot.id = NoTask
	slot.status.Store(StatusNone)
	slot.runtime = nil
	if tb.usedCount > 0 {
		tb.usedCount--
	}
}

// Kill requests self- or cross-task termination: sets status to Kill.
// Actual reaping happens on the next tick via the scheduler. Returns an
// error for an invalid id or a slot that's already None.
func (tb *Table) Kill(id TaskID) error {
	slot := tb.Slot(id)
	if slot == nil || slot.status.Load() == StatusNone {
		return ErrInvalidTaskID
	}
	slot.status.Store(StatusKill)
	return nil
}

// KillImmediate is the ISR-internal variant that skips the "wait for next
// tick" step and reaps inline.
func (tb *Table) KillImmediate(id TaskID) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.reap(id)
}

// KillAll requests termination of every occupied slot (main included).
func (tb *Table) KillAll() {
	for i := range tb.slots {
		if tb.slots[i].status.Load() != StatusNone {
			tb.slots[i].status.Store(StatusKill)
		}
	}
}

// KillAllImmediate reaps every occupied slot in place.
func (tb *Table) KillAllImmediate() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	for i := range tb.slots {
		if tb.slots[i].status.Load() != StatusNone {
			tb.reap(TaskID(i))
		}
	}
	tb.usedCount = 0
}

// KillOthers requests termination of every occupied slot except id and the
// main slot.
func (tb *Table) KillOthers(id TaskID) {
	for i := 0; i < MaxTasks; i++ {
		if TaskID(i) == id {
			continue
		}
		if tb.slots[i].status.Load() != StatusNone {
			tb.slots[i].status.Store(StatusKill)
		}
	}
}

// GetStatus returns id's status, or StatusNone with an error for an
// out-of-range id.
func (tb *Table) GetStatus(id TaskID) (TaskStatus, error) {
	slot := tb.Slot(id)
	if slot == nil {
		return StatusNone, ErrInvalidTaskID
	}
	return slot.Status(), nil
}

// SetStatus implements the single administrative status transition
// (Ready<->Blocked); any other target is refused, since every other
// transition already has a dedicated lifecycle verb whose side effects
// (timeout reload, stack reaping) SetStatus must not bypass.
func (tb *Table) SetStatus(id TaskID, target TaskStatus) error {
	slot := tb.Slot(id)
	if slot == nil {
		return ErrInvalidTaskID
	}
	switch target {
	case StatusBlocked:
		if !slot.status.TryTransition(StatusReady, StatusBlocked) {
			return ErrInvalidStatusTransition
		}
	case StatusReady:
		if !slot.status.TryTransition(StatusBlocked, StatusReady) {
			return ErrInvalidStatusTransition
		}
	default:
		return ErrInvalidStatusTransition
	}
	return nil
}

// SetPriority sets id's configured priority, clamped to
// [0, HighestTaskPriority], and refreshes cachedPriority so a subsequent
// priority-decrementing policy restores from the new value.
func (tb *Table) SetPriority(id TaskID, p int8) error {
	slot := tb.Slot(id)
	if slot == nil {
		return ErrInvalidTaskID
	}
	if p < 0 {
		p = 0
	}
	if p > HighestTaskPriority {
		p = HighestTaskPriority
	}
	tb.mu.Lock()
	slot.priority = p
	slot.cachedPriority = p
	tb.mu.Unlock()
	return nil
}

// GetCurrentTaskID is provided on Kernel (isr.go owns "current"); Table
// itself has no notion of "current".

// GetActiveTaskCount returns the number of non-None slots (main included
// only if installed).
func (tb *Table) GetActiveTaskCount() int {
	n := 0
	for i := range tb.slots {
		if tb.slots[i].status.Load() != StatusNone {
			n++
		}
	}
	return n
}

// GetTaskByFunction returns the id of the first slot whose entry function
// is fn, comparing by code pointer (reflect) since Go funcs aren't
// otherwise comparable; a caveat inherent to any function-pointer lookup
// over closures, same as comparing raw code addresses on real hardware.
func (tb *Table) GetTaskByFunction(fn TaskFunc) TaskID {
	if fn == nil {
		return NoTask
	}
	want := reflect.ValueOf(fn).Pointer()
	tb.mu.Lock()
	defer tb.mu.Unlock()
	for i := range tb.slots {
		if tb.slots[i].entry != nil && reflect.ValueOf(tb.slots[i].entry).Pointer() == want {
			return TaskID(i)
		}
	}
	return NoTask
}
