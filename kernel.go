package avrkernel

import (
	"sync"
	"sync/atomic"
)

// Kernel ties together the task table, scheduler policy, tick-driven
// dispatcher, and synchronization primitives into the single object a host
// program constructs and drives. There is no persisted state: a Kernel is
// pure in-memory state, fully reconstructed by NewKernel.
type Kernel struct {
	table   *Table
	sched   *scheduler
	hw      *simulatedHardware
	tickSrc TickSource
	log     *kernelLogger

	running  atomic.Bool
	idleMain bool
	current  atomic.Int64

	mainFn       TaskFunc
	mainPriority int8

	mu sync.Mutex // the "interrupts disabled" lock; shared by EnterCritical and tick

	critMu    sync.Mutex
	critDepth int

	suspendMu    sync.Mutex
	suspendDepth int

	sharedData Semaphore

	stopCh chan struct{}
}

// NewKernel constructs a Kernel with an empty task table. Call AttachTask
// or ScheduleTask to populate it, then DispatchTasks/StartTasks to run it.
func NewKernel(opts ...KernelOption) *Kernel {
	cfg := resolveKernelOptions(opts)
	k := &Kernel{
		table:   NewTable(),
		sched:   newScheduler(cfg.policy),
		hw:      newSimulatedHardware(),
		tickSrc: cfg.tick,
		log:     newKernelLogger(cfg.eventSink),
		stopCh:  make(chan struct{}),

		mainFn:       cfg.mainFn,
		mainPriority: cfg.mainPriority,
	}
	k.current.Store(int64(NoTask))
	return k
}

// AttachTask installs fn at the given slot id (spec-illustrative name:
// returns the same id on success so a caller that passed a fixed id can
// treat the return value uniformly with ScheduleTask).
func (k *Kernel) AttachTask(fn TaskFunc, id TaskID) (TaskID, error) {
	if err := k.table.Attach(fn, id); err != nil {
		return id, err
	}
	if k.running.Load() {
		k.spawn(id)
	}
	return id, nil
}

// ScheduleTask installs fn at the first free slot.
func (k *Kernel) ScheduleTask(fn TaskFunc) (TaskID, error) {
	id, err := k.table.Schedule(fn)
	if err != nil {
		return NoTask, err
	}
	if k.running.Load() {
		k.spawn(id)
	}
	return id, nil
}

// KillTask marks id Kill. When the kernel has a current task, the caller is
// taken to be that task: killing it never returns from this call, and
// killing any other slot parks the caller at checkpoints until that slot is
// reaped. With no current task (before dispatch) it returns as soon as the
// slot is marked.
func (k *Kernel) KillTask(id TaskID) error {
	return k.Kill(id)
}

// Kill is the underlying implementation of KillTask; see isr.go/task.go
// for the self-kill/cross-kill distinction.
func (k *Kernel) Kill(id TaskID) error {
	if err := k.table.Kill(id); err != nil {
		return err
	}
	caller := k.CurrentTaskID()

	if caller != NoTask && caller == id {
		// Self-kill: this goroutine is never handed the baton again once
		// its slot is reaped, so parking here would leak it forever.
		// Unwind immediately instead; the dispatcher reaps the slot on
		// its own next tick.
		goexitSelf()
	}

	for caller != NoTask {
		st, err := k.table.GetStatus(id)
		if err != nil || st == StatusNone {
			break
		}
		k.checkpoint(caller)
	}
	return nil
}

// KillAllTasks requests termination of every occupied slot, including main.
func (k *Kernel) KillAllTasks() {
	k.table.KillAll()
}

// KillOtherTasks requests termination of every occupied slot except id and
// main.
func (k *Kernel) KillOtherTasks(id TaskID) {
	k.table.KillOthers(id)
}

// GetCurrentTaskId returns the id of the slot currently holding the baton,
// or NoTask before the kernel starts dispatching.
func (k *Kernel) GetCurrentTaskId() TaskID { return k.CurrentTaskID() }

// CurrentTaskID is the unexported-name-friendly equivalent of
// GetCurrentTaskId, used internally by files that don't need the
// spec-illustrative casing.
func (k *Kernel) CurrentTaskID() TaskID { return TaskID(k.current.Load()) }

func (k *Kernel) setCurrentTaskID(id TaskID) { k.current.Store(int64(id)) }

// GetTaskStatus returns id's status.
func (k *Kernel) GetTaskStatus(id TaskID) (TaskStatus, error) {
	return k.table.GetStatus(id)
}

// SetTaskStatus requests the single administrative Ready<->Blocked
// transition.
func (k *Kernel) SetTaskStatus(id TaskID, st TaskStatus) error {
	return k.table.SetStatus(id, st)
}

// SetTaskPriority sets id's configured priority, clamped to
// [0, HighestTaskPriority].
func (k *Kernel) SetTaskPriority(id TaskID, p int8) error {
	return k.table.SetPriority(id, p)
}

// SetTaskSchedule switches the scheduler policy for subsequent ticks.
func (k *Kernel) SetTaskSchedule(policy Policy) {
	k.sched = newScheduler(policy)
}

// GetActiveTaskCount returns the number of non-None slots.
func (k *Kernel) GetActiveTaskCount() int { return k.table.GetActiveTaskCount() }

// GetTaskByFunction returns the id of the first slot whose entry function
// is fn.
func (k *Kernel) GetTaskByFunction(fn TaskFunc) TaskID { return k.table.GetTaskByFunction(fn) }

// TaskSetYield parks id in Yield for n ticks, decremented by the tick ISR.
// If id is the currently-running task, this call blocks the caller until
// the tick has counted the countdown down and set the slot back to Ready;
// otherwise it parks id in Yield and the tick counts down from now.
func (k *Kernel) TaskSetYield(id TaskID, n int16) error { return k.Yield(id, n) }

// Yield is the underlying implementation of TaskSetYield.
func (k *Kernel) Yield(id TaskID, n int16) error {
	slot := k.table.Slot(id)
	if slot == nil {
		return ErrInvalidTaskID
	}
	if !slot.status.TryTransition(StatusReady, StatusYield) {
		return ErrInvalidStatusTransition
	}
	slot.timeout = n
	slot.defaultTimeout = n
	if id == k.CurrentTaskID() {
		for slot.status.Load() == StatusYield {
			k.checkpoint(id)
		}
	}
	return nil
}

// TaskSleep parks id in Sleep for n ticks, decremented by the task's own
// checkpoint loop rather than the tick ISR. Only meaningful when id is the
// currently-running task; called for any other id it just flips status.
func (k *Kernel) TaskSleep(id TaskID, n int16) error { return k.Sleep(id, n) }

// Sleep is the underlying implementation of TaskSleep.
func (k *Kernel) Sleep(id TaskID, n int16) error {
	slot := k.table.Slot(id)
	if slot == nil {
		return ErrInvalidTaskID
	}
	if !slot.status.TryTransition(StatusReady, StatusSleep) {
		return ErrInvalidStatusTransition
	}
	if id == k.CurrentTaskID() {
		for remaining := n; remaining > 0; remaining-- {
			k.checkpoint(id)
		}
		slot.status.TryTransition(StatusSleep, StatusReady)
	}
	return nil
}

// OpenSemaphoreRequest acquires the kernel's shared-data semaphore,
// spinning if wait is true and it's already held.
func (k *Kernel) OpenSemaphoreRequest(wait bool) error {
	if !k.sharedData.Open(wait) {
		return ErrSemaphoreBusy
	}
	return nil
}

// CloseSemaphoreRequest releases the kernel's shared-data semaphore.
func (k *Kernel) CloseSemaphoreRequest() { k.sharedData.Close() }

// TaskRequestDataCopy copies n bytes within the simulated RAM arena,
// guarded by the shared-data semaphore; it does not yield.
func (k *Kernel) TaskRequestDataCopy(dst, src, n int) error {
	if !inRAM(dst, n) || !inRAM(src, n) {
		return ErrOutOfRange
	}
	if !k.RequestDataCopy(dst, src, n) {
		return ErrSemaphoreBusy
	}
	return nil
}

// goexitSelf terminates the calling goroutine without returning further
// into its entry function, mirroring how a self-killed task on real
// hardware never resumes into its own stale stack.
func goexitSelf() {
	panic(selfKillSentinel{})
}

// selfKillSentinel is recovered by the goroutine wrapper in isr.go's
// spawn, which treats it as a normal, silent self-termination rather than
// an entry-function panic.
type selfKillSentinel struct{}
