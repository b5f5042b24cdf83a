package avrkernel

import "errors"

// Sentinel errors covering the precondition, resource-exhaustion, and
// catastrophic-failure taxonomy the kernel can report.
var (
	// ErrKernelAlreadyRunning is returned when DispatchTasks/StartTasks is
	// called on a kernel that's already dispatching.
	ErrKernelAlreadyRunning = errors.New("avrkernel: kernel is already running")

	// ErrTaskTableFull is returned by Schedule when no slot is free.
	ErrTaskTableFull = errors.New("avrkernel: task table is full")

	// ErrInvalidTaskID is returned by operations given an id outside
	// [0, MaxTasks) (or outside [0, MaxTasks] where the main slot is
	// addressable).
	ErrInvalidTaskID = errors.New("avrkernel: invalid task id")

	// ErrStackOutOfRange is returned by Attach when the carved stack
	// region for a slot would fall outside the simulated RAM arena.
	ErrStackOutOfRange = errors.New("avrkernel: carved stack region out of RAM bounds")

	// ErrNilEntry is returned by Attach when given a nil entry function.
	ErrNilEntry = errors.New("avrkernel: nil task entry function")

	// ErrSchedulerHalted is what the scheduler's selection reports when no
	// selectable task is found within the safety bound. It triggers the
	// catastrophic-failure path, which logs it; DispatchTasks/StartTasks
	// then return nil, not this error.
	ErrSchedulerHalted = errors.New("avrkernel: scheduler halted: no selectable task")

	// ErrSemaphoreBusy is returned by OpenSemaphoreRequest(wait=false) and
	// by TaskRequestDataCopy when the semaphore is already held.
	ErrSemaphoreBusy = errors.New("avrkernel: semaphore busy")

	// ErrOutOfRange is returned by the range-checked data-transfer
	// helpers when src/dst don't lie within the simulated RAM arena.
	ErrOutOfRange = errors.New("avrkernel: transfer range outside RAM")

	// ErrInvalidStatusTransition is returned by SetStatus for any target
	// status other than the Blocked<->Ready administrative transition.
	ErrInvalidStatusTransition = errors.New("avrkernel: status transition must go through a lifecycle verb")
)
