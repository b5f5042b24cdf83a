package avrkernel

import "sort"

// Policy selects how the scheduler picks the next slot each tick.
type Policy int

const (
	// PolicyRoundRobin advances the current index by one, wrapping over
	// the table, skipping Blocked/None/Kill slots.
	PolicyRoundRobin Policy = iota
	// PolicyPriority selects the highest-priority eligible slot,
	// excluding the slot just run and already-visited priorities this
	// cycle; the chosen slot's priority is then decremented (restored
	// from cachedPriority if it goes negative).
	PolicyPriority
	// PolicyPriorityReady is PolicyPriority restricted to Ready/Main.
	PolicyPriorityReady
	// PolicyPriorityStrict alternates: main, then the single
	// highest-priority eligible slot, every other tick.
	PolicyPriorityStrict
	// PolicyPriorityMain is PolicyPriority but forces main every other
	// tick.
	PolicyPriorityMain
	// PolicyPriorityReorder recomputes a priority-descending visiting
	// order at the top of each cycle, then walks it like round-robin.
	// Unlike the other priority policies it never changes which task runs
	// most often, only the order tasks are offered the CPU within a
	// cycle; slots themselves are never relocated, so a task's id, entry
	// function, and runtime baton stay put for its entire lifetime.
	PolicyPriorityReorder
)

// selectionSafetyBound is the "100 iterations" safety counter; exhausting
// it means no selectable task exists (or the table is corrupted), and
// triggers the catastrophic fallback.
const selectionSafetyBound = 100

// scheduler holds the policy and the small amount of state its selection
// algorithms need across ticks (current index, parity for alternating
// policies, the set of priorities already visited this cycle, and the
// priority-reorder policy's precomputed visiting order).
type scheduler struct {
	policy       Policy
	currentIndex int
	tickParity   uint64
	visited      map[int8]bool

	// order and orderPos implement PolicyPriorityReorder: order is a
	// snapshot of ids in priority-descending order, orderPos the cursor
	// into it. Recomputed whenever the cursor runs off the end (cycle
	// boundary), never touching the table itself.
	order    []TaskID
	orderPos int
}

func newScheduler(p Policy) *scheduler {
	return &scheduler{policy: p, visited: make(map[int8]bool)}
}

// wrapBound returns the number of slots round-robin wraps over: MaxTasks+1
// (main included) unless a non-idle main function was installed, in which
// case wrap is over MaxTasks only.
func wrapBound(idleMain bool) int {
	if idleMain {
		return MaxTasks + 1
	}
	return MaxTasks
}

// selectNext picks the next slot to run, per the configured policy. justRan
// is the slot that ran the tick just finished (NoTask on the very first
// tick). idleMain reports whether the installed main task is the default
// idle spin (affects round-robin's wrap bound). Reaping of any
// Kill slot encountered during selection happens in place.
//
// Returns ErrSchedulerHalted if no selectable slot is found within
// selectionSafetyBound iterations.
func (sc *scheduler) selectNext(tb *Table, justRan TaskID, idleMain bool) (TaskID, error) {
	sc.reapEncountered(tb)

	switch sc.policy {
	case PolicyPriority:
		return sc.selectPriority(tb, justRan, false)
	case PolicyPriorityReady:
		return sc.selectPriority(tb, justRan, true)
	case PolicyPriorityStrict:
		return sc.selectPriorityStrict(tb, justRan)
	case PolicyPriorityMain:
		return sc.selectPriorityMain(tb, justRan)
	case PolicyPriorityReorder:
		return sc.selectPriorityReorder(tb, justRan, idleMain)
	default:
		return sc.selectRoundRobin(tb, idleMain)
	}
}

// reapEncountered clears any Kill slot before selection runs: a slot found
// in Kill during policy selection is reaped in place before the
// next-index advance. Scanning the whole table once per tick is cheap at
// this size (<= MaxTasks+1 ~= 11 slots).
func (sc *scheduler) reapEncountered(tb *Table) {
	tb.mu.Lock()
	for i := range tb.slots {
		if tb.slots[i].status.Load() == StatusKill {
			tb.reap(TaskID(i))
		}
	}
	tb.mu.Unlock()
}

func (sc *scheduler) selectRoundRobin(tb *Table, idleMain bool) (TaskID, error) {
	bound := wrapBound(idleMain)
	for attempt := 0; attempt < selectionSafetyBound; attempt++ {
		sc.currentIndex = (sc.currentIndex + 1) % bound
		slot := tb.Slot(TaskID(sc.currentIndex))
		if slot == nil {
			continue
		}
		if slot.status.Load().isSelectable() {
			return TaskID(sc.currentIndex), nil
		}
	}
	return NoTask, ErrSchedulerHalted
}

// eligible reports whether slot qualifies for a priority-family policy:
// always excludes the slot just run (so a single high-priority task
// doesn't monopolize back-to-back ticks), and if readyOnly is set,
// further restricts to Ready/Main.
func eligible(slot *TaskControl, justRan TaskID, readyOnly bool) bool {
	if slot.id == justRan {
		return false
	}
	st := slot.status.Load()
	if !st.isSelectable() {
		return false
	}
	if readyOnly && st != StatusReady && st != StatusMain {
		return false
	}
	return true
}

func (sc *scheduler) selectPriority(tb *Table, justRan TaskID, readyOnly bool) (TaskID, error) {
	for attempt := 0; attempt < selectionSafetyBound; attempt++ {
		best := NoTask
		var bestPriority int8 = -128
		tb.mu.Lock()
		for i := range tb.slots {
			slot := &tb.slots[i]
			if !eligible(slot, justRan, readyOnly) {
				continue
			}
			if sc.visited[slot.priority] {
				continue
			}
			if slot.priority > bestPriority {
				bestPriority = slot.priority
				best = slot.id
			}
		}
		tb.mu.Unlock()

		if best != NoTask {
			sc.visited[bestPriority] = true
			sc.decrementPriority(tb, best)
			return best, nil
		}

		// Nothing eligible under the current visited set: reset the
		// cycle and retry (visited priorities are excluded until the
		// cycle resets).
		if len(sc.visited) == 0 {
			// Nothing is eligible at all, even with a clean cycle.
			break
		}
		sc.visited = make(map[int8]bool)
	}
	return NoTask, ErrSchedulerHalted
}

// decrementPriority implements the scheduler's fairness mechanism: after
// each selection the chosen slot's priority is decremented, restored from
// cachedPriority if it goes negative.
func (sc *scheduler) decrementPriority(tb *Table, id TaskID) {
	slot := tb.Slot(id)
	if slot == nil {
		return
	}
	tb.mu.Lock()
	slot.priority--
	if slot.priority < 0 {
		slot.priority = slot.cachedPriority
	}
	tb.mu.Unlock()
}

func (sc *scheduler) selectPriorityStrict(tb *Table, justRan TaskID) (TaskID, error) {
	sc.tickParity++
	if sc.tickParity%2 == 1 {
		return MainID(), nil
	}
	return sc.selectSinglePriorityPick(tb, justRan)
}

func (sc *scheduler) selectPriorityMain(tb *Table, justRan TaskID) (TaskID, error) {
	sc.tickParity++
	if sc.tickParity%2 == 1 {
		return MainID(), nil
	}
	return sc.selectPriority(tb, justRan, false)
}

// selectSinglePriorityPick picks the single highest-priority eligible slot
// without the visited-set rotation (used by the strict policy, which
// relies on an external manager to retune priorities rather than the
// in-kernel rotation).
func (sc *scheduler) selectSinglePriorityPick(tb *Table, justRan TaskID) (TaskID, error) {
	best := NoTask
	var bestPriority int8 = -128
	tb.mu.Lock()
	for i := range tb.slots {
		slot := &tb.slots[i]
		if !eligible(slot, justRan, false) {
			continue
		}
		if slot.priority > bestPriority {
			bestPriority = slot.priority
			best = slot.id
		}
	}
	tb.mu.Unlock()
	if best == NoTask {
		return NoTask, ErrSchedulerHalted
	}
	return best, nil
}

// selectPriorityReorder walks a priority-descending snapshot of ids,
// recomputed whenever the previous snapshot has been fully walked (a
// cycle boundary), then returns the next selectable id from it. The table
// itself is never mutated by this policy: a task's slot, id, entry
// function, and runtime baton are exactly as fixed as under plain
// round-robin. This is a deliberate departure from a scheme that
// physically swapped whole TaskControl records (including the live
// taskRuntime baton channels) between array positions: a task's own
// goroutine resolves its identity by the fixed id it was spawned with
// (see checkpoint/Yield/Sleep), so relocating its record out from under
// that id mid-run would have the task operating on a different slot's
// channels than the one actually holding its stack.
func (sc *scheduler) selectPriorityReorder(tb *Table, justRan TaskID, idleMain bool) (TaskID, error) {
	bound := wrapBound(idleMain)
	for attempt := 0; attempt < selectionSafetyBound; attempt++ {
		if sc.orderPos >= len(sc.order) {
			sc.order = sc.priorityOrder(tb, bound)
			sc.orderPos = 0
			if len(sc.order) == 0 {
				break
			}
		}
		id := sc.order[sc.orderPos]
		sc.orderPos++
		slot := tb.Slot(id)
		if slot != nil && slot.status.Load().isSelectable() {
			return id, nil
		}
	}
	return NoTask, ErrSchedulerHalted
}

// priorityOrder snapshots [0, bound) sorted by descending priority,
// ties broken by index, without touching the table's contents.
func (sc *scheduler) priorityOrder(tb *Table, bound int) []TaskID {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	ids := make([]TaskID, bound)
	for i := range ids {
		ids[i] = TaskID(i)
	}
	sort.SliceStable(ids, func(a, b int) bool {
		return tb.slots[ids[a]].priority > tb.slots[ids[b]].priority
	})
	return ids
}
