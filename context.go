package avrkernel

// Word is a 16-bit quantity stored as two bytes: PC and SP are
// byte-addressable pairs so the save/restore sequences can emit them one
// byte at a time, the way a real ISR prologue pushes and pops them rather
// than as a native word.
type Word struct {
	Hi, Lo byte
}

// WordOf packs a 16-bit value into a Word.
func WordOf(v uint16) Word { return Word{Hi: byte(v >> 8), Lo: byte(v)} }

// Uint16 unpacks a Word back into a 16-bit value.
func (w Word) Uint16() uint16 { return uint16(w.Hi)<<8 | uint16(w.Lo) }

// Context is the saved CPU state of a task: the status-register snapshot,
// the general-purpose register file, the program counter, and the stack
// pointer. It's the unit SaveContext and RestoreContext operate on.
type Context struct {
	StatusReg byte
	Registers []byte // allocated to TaskRegisters bytes; see newContext
	PC        Word
	SP        Word
}

// newContext returns a zeroed Context with its register file sized from
// the current value of TaskRegisters.
func newContext() Context {
	return Context{Registers: make([]byte, TaskRegisters)}
}

// HardwareState is the narrow interface the naked ISR prologue/epilogue is
// built on: isolating the save/restore sequence behind a documented
// interface lets the scheduler policy and state machine be written in
// ordinary code and exercised on a host simulator by stubbing these two
// operations.
//
// On an 8-bit AVR target, every method below is a handful of instructions
// operating directly on CPU registers and the hardware stack pointer,
// emitted from inside a naked interrupt handler — not expressible in
// portable Go, and out of scope here (the assembly sequence is inherently
// target-specific). simulatedHardware is the host stand-in.
type HardwareState interface {
	StatusRegister() byte
	SetStatusRegister(byte)
	GeneralRegisters() []byte
	ProgramCounter() Word
	SetProgramCounter(Word)
	StackPointer() Word
	SetStackPointer(Word)
}

// simulatedHardware is the host-build HardwareState: a plain struct holding
// the "currently executing" register file, stood in for the real CPU. The
// tick ISR (isr.go) owns exactly one of these and treats it as "the CPU".
type simulatedHardware struct {
	sr   byte
	regs []byte
	pc   Word
	sp   Word
}

// newSimulatedHardware allocates the register file at its current
// TaskRegisters size; a host build that retunes TaskRegisters before
// constructing a Kernel gets hardware sized to match.
func newSimulatedHardware() *simulatedHardware {
	return &simulatedHardware{regs: make([]byte, TaskRegisters)}
}

func (h *simulatedHardware) StatusRegister() byte     { return h.sr }
func (h *simulatedHardware) SetStatusRegister(v byte) { h.sr = v }
func (h *simulatedHardware) GeneralRegisters() []byte { return h.regs }
func (h *simulatedHardware) ProgramCounter() Word     { return h.pc }
func (h *simulatedHardware) SetProgramCounter(v Word) { h.pc = v }
func (h *simulatedHardware) StackPointer() Word       { return h.sp }
func (h *simulatedHardware) SetStackPointer(v Word)   { h.sp = v }

// SaveContext serializes hw's current state into ctx, in a fixed order:
// status register first, then the general-purpose register file, then the
// program counter, then the stack pointer. On real hardware this runs
// from inside the naked tick ISR with interrupts already disabled;
// callers here are expected to hold the kernel's critical section for the
// same reason.
func SaveContext(ctx *Context, hw HardwareState) {
	ctx.StatusReg = hw.StatusRegister()
	regs := hw.GeneralRegisters()
	if len(ctx.Registers) != len(regs) {
		ctx.Registers = make([]byte, len(regs))
	}
	copy(ctx.Registers, regs)
	ctx.PC = hw.ProgramCounter()
	ctx.SP = hw.StackPointer()
}

// RestoreContext writes ctx back into hw in the reverse order of Save:
// stack pointer first, then the program counter, then the register file,
// then the status register (so that on real hardware, enabling
// interrupts and executing `reti` last is safe).
func RestoreContext(ctx *Context, hw HardwareState) {
	hw.SetStackPointer(ctx.SP)
	hw.SetProgramCounter(ctx.PC)
	copy(hw.GeneralRegisters(), ctx.Registers)
	hw.SetStatusRegister(ctx.StatusReg)
}
