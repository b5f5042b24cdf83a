package avrkernel

// applyTickTimeouts implements the timeout semantics: on each tick, for
// every slot not in Blocked, None, or Sleep, timeout is
// decremented by one if positive; when it reaches zero, a Yield slot
// transitions to Ready and timeout is reloaded from defaultTimeout
// (unless defaultTimeout is 0, in which case no auto-reload happens).
// Sleep is deliberately excluded: its countdown is task-self-decremented
// (see Kernel.Sleep), never by the tick.
func applyTickTimeouts(tb *Table) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	for i := range tb.slots {
		slot := &tb.slots[i]
		st := slot.status.Load()
		if !st.decrementsByTick() {
			continue
		}
		if slot.timeout > 0 {
			slot.timeout--
		}
		if slot.timeout == 0 && st == StatusYield {
			slot.status.Store(StatusReady)
			if slot.defaultTimeout != 0 {
				slot.timeout = slot.defaultTimeout
			}
		}
	}
}
