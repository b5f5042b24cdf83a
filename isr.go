package avrkernel

import (
	"sync"
	"time"
)

// TickSource is the configurable timer/interrupt abstraction: it exposes
// the four macro-hooks ("stop tick", "start tick", "load reload register",
// "enable tick interrupt") plus a channel that delivers one value per
// fired tick, standing in for a timer-overflow interrupt vector — which
// physical timer or watchdog backs it is a board-level choice, out of
// scope here.
type TickSource interface {
	Start()
	Stop()
	Reload(ticks uint16)
	EnableInterrupt(enabled bool)
	C() <-chan struct{}
}

// ManualTickSource is a host-simulation TickSource driven explicitly by
// Step, for deterministic tests phrased in exact tick counts (e.g. "after
// 10000 ticks"). It never fires on its own.
type ManualTickSource struct {
	mu        sync.Mutex
	started   bool
	irqOn     bool
	reload    uint16
	c         chan struct{}
}

// NewManualTickSource returns a stopped, interrupt-disabled tick source.
func NewManualTickSource() *ManualTickSource {
	return &ManualTickSource{c: make(chan struct{})}
}

func (m *ManualTickSource) Start()                  { m.mu.Lock(); m.started = true; m.mu.Unlock() }
func (m *ManualTickSource) Stop()                   { m.mu.Lock(); m.started = false; m.mu.Unlock() }
func (m *ManualTickSource) Reload(ticks uint16)     { m.mu.Lock(); m.reload = ticks; m.mu.Unlock() }
func (m *ManualTickSource) EnableInterrupt(on bool) { m.mu.Lock(); m.irqOn = on; m.mu.Unlock() }
func (m *ManualTickSource) C() <-chan struct{}      { return m.c }

// Step fires one tick if the source is started and its interrupt is
// enabled, blocking until the kernel's dispatcher has consumed it.
// Returns false (no-op) otherwise, mirroring a real timer whose overflow
// is ignored while its interrupt line is masked.
func (m *ManualTickSource) Step() bool {
	m.mu.Lock()
	fire := m.started && m.irqOn
	m.mu.Unlock()
	if !fire {
		return false
	}
	m.c <- struct{}{}
	return true
}

// RealTickSource is a wall-clock TickSource for a live host build: it maps
// the reload value onto a time.Ticker period. It's a convenience, not a
// faithful reproduction of a hardware reload register's frequency; a real
// target drives TaskInterruptTicks off the CPU clock instead.
type RealTickSource struct {
	mu      sync.Mutex
	started bool
	irqOn   bool
	period  time.Duration
	timer   *time.Timer
	c       chan struct{}
	stopCh  chan struct{}
}

// NewRealTickSource builds a RealTickSource using microsecondsPerTick as
// the mapping from one reload unit to wall-clock time.
func NewRealTickSource(microsecondsPerTick time.Duration) *RealTickSource {
	return &RealTickSource{
		period: microsecondsPerTick * time.Duration(TaskInterruptTicks),
		c:      make(chan struct{}),
	}
}

func (r *RealTickSource) C() <-chan struct{} { return r.c }

func (r *RealTickSource) Reload(ticks uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.period = time.Microsecond * time.Duration(ticks)
}

func (r *RealTickSource) EnableInterrupt(on bool) {
	r.mu.Lock()
	r.irqOn = on
	r.mu.Unlock()
}

func (r *RealTickSource) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	period := r.period
	r.stopCh = make(chan struct{})
	stop := r.stopCh
	r.mu.Unlock()

	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				r.mu.Lock()
				on := r.irqOn
				r.mu.Unlock()
				if on {
					r.c <- struct{}{}
				}
			}
		}
	}()
}

func (r *RealTickSource) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	close(r.stopCh)
	r.mu.Unlock()
}

// taskRuntime is the host-simulation baton for one slot: exactly one of
// these is "runnable" at a time, enforced by the dispatcher only ever
// handing the baton to a single slot and blocking until it's handed back.
// This is the stand-in for "the task's own private stack": a parked Go
// goroutine keeps its entire call stack intact, which is a strictly
// stronger guarantee than a byte-for-byte register save/restore on real
// hardware (see SaveContext/RestoreContext, still invoked for data-model
// fidelity and testability).
type taskRuntime struct {
	resume chan struct{}
	parked chan struct{}
	exited chan struct{}
}

func newTaskRuntime() *taskRuntime {
	return &taskRuntime{
		resume: make(chan struct{}),
		parked: make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// checkpoint is the suspension point a cooperating task calls from inside
// Yield/Sleep/the blocking data helpers: it hands the baton back to the
// dispatcher and blocks until the dispatcher hands it back. A true
// any-instruction preemption point collapses, on a hosted goroutine, to
// these explicit checkpoints — a task that never calls one cannot be
// preempted mid-function on this host build.
func (k *Kernel) checkpoint(id TaskID) {
	rt := k.table.Slot(id).runtime
	if rt == nil {
		return
	}
	rt.parked <- struct{}{}
	<-rt.resume
}

// handOff gives the baton to id's goroutine and blocks until that
// goroutine either parks again (calls checkpoint) or exits (its entry
// function returned, or it self-killed by unwinding through goexitSelf).
func (k *Kernel) handOff(id TaskID) {
	slot := k.table.Slot(id)
	if slot == nil || slot.runtime == nil {
		return
	}
	rt := slot.runtime
	select {
	case rt.resume <- struct{}{}:
	case <-rt.exited:
		return
	}
	select {
	case <-rt.parked:
	case <-rt.exited:
	}
}

// spawn starts id's goroutine, parked immediately until first dispatched.
func (k *Kernel) spawn(id TaskID) {
	slot := k.table.Slot(id)
	rt := slot.runtime
	fn := slot.entry
	go func() {
		defer close(rt.exited)
		select {
		case <-rt.resume:
		case <-rt.exited:
			return
		}
		selfKilled := false
		func() {
			defer func() {
				if r := recover(); r != nil {
					if _, ok := r.(selfKillSentinel); ok {
						selfKilled = true
						return
					}
					k.logPanic(id, r)
				}
			}()
			fn(k, id)
		}()
		if !selfKilled {
			// The entry function returned (or panicked) on its own:
			// self-terminate the same way an explicit Kill(self) would,
			// swallowing the selfKillSentinel that unwind produces.
			func() {
				defer func() { recover() }()
				_ = k.Kill(id)
			}()
		}
	}()
}

// tick is the single naked-ISR equivalent: disable interrupts (take the
// kernel's critical section), save the outgoing
// context, run the scheduler policy (which may reap a Kill slot and/or
// promote a Scheduled slot to Ready), restore the incoming context,
// reload the tick counter, re-enable interrupts, and hand the baton to
// whichever slot is now current.
func (k *Kernel) tick() {
	release := k.EnterCritical()
	current := k.CurrentTaskID()

	if cur := k.table.Slot(current); cur != nil {
		SaveContext(&cur.context, k.hw)
	}

	applyTickTimeouts(k.table)

	next, err := k.sched.selectNext(k.table, current, k.idleMain)
	if err != nil {
		k.catastrophicFailure(err)
		release()
		return
	}

	if slot := k.table.Slot(next); slot != nil && slot.Status() == StatusScheduled {
		slot.status.Store(StatusReady)
		next = MainID()
	}

	if nextSlot := k.table.Slot(next); nextSlot != nil {
		RestoreContext(&nextSlot.context, k.hw)
	}
	k.setCurrentTaskID(next)
	k.tickSrc.Reload(TaskInterruptTicks)
	release()

	k.handOff(next)
}

// catastrophicFailure implements the scheduler's only fatal path: the
// selection loop exhausted its safety bound, so no selectable task exists
// (or the table is corrupted). The kernel kills every slot,
// halts the tick source, and clears the running flag so the blocking
// DispatchTasks caller returns.
func (k *Kernel) catastrophicFailure(cause error) {
	k.table.KillAllImmediate()
	k.tickSrc.Stop()
	k.running.Store(false)
	k.logCatastrophic(cause)
}

// DispatchTasks is the blocking launch sequence. It runs the main task
// preset via WithMainTask if one was configured; otherwise it falls back to
// the zero-value idle main task, a trivial spin loop.
func (k *Kernel) DispatchTasks() error {
	if k.mainFn != nil {
		return k.dispatch(k.mainFn, k.mainPriority, false)
	}
	return k.dispatch(defaultIdleTask, 0, true)
}

// StartTasks is DispatchTasks with a caller-supplied main/kernel function
// running in the idle slot instead of the default spin loop.
func (k *Kernel) StartTasks(mainFn TaskFunc, priority int8) error {
	if mainFn == nil {
		return ErrNilEntry
	}
	return k.dispatch(mainFn, priority, false)
}

func defaultIdleTask(k *Kernel, id TaskID) {
	for {
		k.checkpoint(id)
	}
}

func (k *Kernel) dispatch(mainFn TaskFunc, priority int8, idleMain bool) error {
	if !k.running.CompareAndSwap(false, true) {
		return ErrKernelAlreadyRunning
	}

	release := k.EnterCritical()
	for i := 0; i < MaxTasks; i++ {
		if slot := &k.table.slots[i]; slot.status.Load() != StatusNone {
			slot.status.Store(StatusReady)
		}
	}
	if err := k.table.installMain(mainFn, priority); err != nil {
		release()
		k.running.Store(false)
		return err
	}
	k.idleMain = idleMain
	k.setCurrentTaskID(MainID())
	k.sched.currentIndex = -1 // first round-robin advance lands on index 0
	k.tickSrc.Stop()
	k.tickSrc.EnableInterrupt(true)
	k.tickSrc.Reload(TaskInterruptTicks)
	release()

	for i := 0; i < MaxTasks; i++ {
		if k.table.slots[i].status.Load() != StatusNone {
			k.spawn(TaskID(i))
		}
	}
	k.spawn(MainID())

	k.tickSrc.Start()
	// The main slot holds the baton first, until it parks; the first tick
	// then switches away from it.
	k.handOff(MainID())

	for k.running.Load() {
		select {
		case <-k.tickSrc.C():
			k.tick()
		case <-k.stopCh:
			return nil
		}
	}
	return nil
}

// Tick drives one scheduler tick directly, bypassing the configured
// TickSource entirely. It exists for host-simulator tests that want to
// advance the kernel deterministically without a ManualTickSource; using
// both on the same Kernel is not supported.
func (k *Kernel) Tick() { k.tick() }
