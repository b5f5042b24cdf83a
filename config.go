// Package avrkernel implements a preemptive micro-kernel for a single-core
// 8-bit microcontroller, as a host-testable Go simulation. Tasks are fibers
// with private stacks, scheduled by a periodic tick under a selectable
// policy; the only target-specific piece — CPU register save/restore inside
// a naked ISR — is isolated behind the narrow HardwareState interface in
// context.go, so the rest of the kernel is ordinary, deterministic Go.
package avrkernel

// Compile-time sizing knobs. On real hardware these would be preprocessor
// macros; here they're package vars so a host build can retune them
// without editing every call site, but they are NOT meant to change after
// NewKernel.
var (
	// MaxTasks is the size of the task table, excluding the main slot.
	// Task ids are drawn from [0, MaxTasks); MaxTasks itself addresses the
	// permanently-installed main/idle slot.
	MaxTasks = 10

	// TaskRegisters is the number of general-purpose register bytes saved
	// and restored per context switch. 32 on a standard AVR target.
	// newContext and newSimulatedHardware both allocate their register
	// slice from this value, so retuning it before constructing a Kernel
	// resizes every Context's register file and the simulated CPU's.
	TaskRegisters = 32

	// TaskStackSize is the number of bytes carved out of RAM for each
	// task's private stack.
	TaskStackSize = 64

	// HighestTaskPriority caps values accepted by Table.SetPriority.
	HighestTaskPriority int8 = 7

	// TaskInterruptTicks is the reload value loaded into the tick source
	// on every ISR invocation and at StartTasks.
	TaskInterruptTicks uint16 = 1000
)

// TaskID identifies a slot in the task table. Valid ids are in
// [0, MaxTasks]; MaxTasks addresses the main slot. Negative values mean
// "no task".
type TaskID int

// NoTask is the sentinel returned when no task can be identified or
// allocated.
const NoTask TaskID = -1

// MainID returns the id of the permanently-installed main/idle slot. It
// depends on MaxTasks, so it's a function rather than a constant.
func MainID() TaskID { return TaskID(MaxTasks) }
