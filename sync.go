package avrkernel

import (
	"runtime"
	"sync"
)

// EnterCritical implements the "disable interrupts" primitive, nestable:
// only the outermost call actually takes the kernel's big lock
// (shared with tick(), since only one of {a task, the dispatcher} ever
// runs at a time under the baton protocol), and only the matching
// outermost release call gives it back. The returned func must be called
// exactly once, typically via defer.
func (k *Kernel) EnterCritical() func() {
	k.critMu.Lock()
	k.critDepth++
	first := k.critDepth == 1
	k.critMu.Unlock()

	if first {
		k.mu.Lock()
	}

	return func() {
		k.critMu.Lock()
		k.critDepth--
		last := k.critDepth == 0
		k.critMu.Unlock()
		if last {
			k.mu.Unlock()
		}
	}
}

// SuspendScheduler implements the "scheduler suspend lock": it stops the
// tick source for the scope's duration, nestable the same way as
// EnterCritical. Unlike a critical section, the calling task keeps running
// (it isn't holding the kernel's big lock), it just can't be preempted by
// the tick ISR.
func (k *Kernel) SuspendScheduler() func() {
	k.suspendMu.Lock()
	k.suspendDepth++
	first := k.suspendDepth == 1
	k.suspendMu.Unlock()

	if first {
		k.tickSrc.Stop()
	}

	return func() {
		k.suspendMu.Lock()
		k.suspendDepth--
		last := k.suspendDepth == 0
		k.suspendMu.Unlock()
		if last {
			k.tickSrc.Start()
		}
	}
}

// Semaphore is a counting semaphore guarding the data-transfer helpers:
// Open increments a single-unit counter, refusing
// (or, with wait, spinning) while it's already held; Close decrements,
// saturating at zero.
type Semaphore struct {
	mu sync.Mutex
	n  int
}

// Open attempts to acquire the semaphore. If it's already held and wait is
// false, it returns false immediately; if wait is true, it spins
// (runtime.Gosched between attempts) until the semaphore frees up.
func (s *Semaphore) Open(wait bool) bool {
	for {
		s.mu.Lock()
		if s.n == 0 {
			s.n++
			s.mu.Unlock()
			return true
		}
		s.mu.Unlock()
		if !wait {
			return false
		}
		runtime.Gosched()
	}
}

// Close releases the semaphore, saturating at zero (a Close with no
// matching Open is a no-op, not an underflow).
func (s *Semaphore) Close() {
	s.mu.Lock()
	if s.n > 0 {
		s.n--
	}
	s.mu.Unlock()
}

// yieldBackoffTicks is how long YieldRequestDataCopy/YieldWriteData yield
// for between retries of a busy semaphore.
const yieldBackoffTicks = 5

// RequestDataCopy copies n bytes from src to dst within the simulated RAM
// arena, guarded by the kernel's shared-data semaphore. Returns false
// without copying if the semaphore is already held or either range falls
// outside RAM.
func (k *Kernel) RequestDataCopy(dst, src, n int) bool {
	if !k.sharedData.Open(false) {
		return false
	}
	defer k.sharedData.Close()
	return copyRAM(dst, src, n)
}

// YieldRequestDataCopy is RequestDataCopy, but yields (the task-cooperative
// checkpoint) instead of failing while the semaphore is held by another
// task.
func (k *Kernel) YieldRequestDataCopy(id TaskID, dst, src, n int) bool {
	for !k.sharedData.Open(false) {
		if err := k.Yield(id, yieldBackoffTicks); err != nil {
			return false
		}
	}
	defer k.sharedData.Close()
	return copyRAM(dst, src, n)
}

// RequestDataWrite writes data into the RAM arena at dst, guarded by the
// shared-data semaphore. Returns false without writing if the semaphore is
// already held or the destination range falls outside RAM.
func (k *Kernel) RequestDataWrite(dst int, data []byte) bool {
	if !k.sharedData.Open(false) {
		return false
	}
	defer k.sharedData.Close()
	return writeRAM(dst, data)
}

// YieldWriteData is RequestDataWrite, yielding instead of failing while the
// semaphore is held.
func (k *Kernel) YieldWriteData(id TaskID, dst int, data []byte) bool {
	for !k.sharedData.Open(false) {
		if err := k.Yield(id, yieldBackoffTicks); err != nil {
			return false
		}
	}
	defer k.sharedData.Close()
	return writeRAM(dst, data)
}

func copyRAM(dst, src, n int) bool {
	if !inRAM(dst, n) || !inRAM(src, n) {
		return false
	}
	copy(ram[dst:dst+n], ram[src:src+n])
	return true
}

func writeRAM(dst int, data []byte) bool {
	if !inRAM(dst, len(data)) {
		return false
	}
	copy(ram[dst:dst+len(data)], data)
	return true
}
