package avrkernel

import "testing"

func TestWordRoundTrip(t *testing.T) {
	for _, v := range []uint16{0, 1, 0x00ff, 0xff00, 0xabcd, 0xffff} {
		w := WordOf(v)
		if got := w.Uint16(); got != v {
			t.Fatalf("WordOf(%#x).Uint16() = %#x, want %#x", v, got, v)
		}
	}
}

func TestSaveRestoreContextRoundTrip(t *testing.T) {
	hw := newSimulatedHardware()
	hw.SetStatusRegister(0x42)
	regs := hw.GeneralRegisters()
	for i := range regs {
		regs[i] = byte(i)
	}
	hw.SetProgramCounter(WordOf(0x1234))
	hw.SetStackPointer(WordOf(0x08ff))

	var ctx Context
	SaveContext(&ctx, hw)

	// Restore ctx into fresh, zeroed hardware and verify it comes back exactly.
	hw2 := newSimulatedHardware()
	hw2.SetStatusRegister(0)
	RestoreContext(&ctx, hw2)

	if hw2.StatusRegister() != 0x42 {
		t.Errorf("status register = %#x, want 0x42", hw2.StatusRegister())
	}
	if hw2.ProgramCounter().Uint16() != 0x1234 {
		t.Errorf("PC = %#x, want 0x1234", hw2.ProgramCounter().Uint16())
	}
	if hw2.StackPointer().Uint16() != 0x08ff {
		t.Errorf("SP = %#x, want 0x08ff", hw2.StackPointer().Uint16())
	}
	for i, b := range hw2.GeneralRegisters() {
		if b != byte(i) {
			t.Fatalf("register %d = %d, want %d", i, b, i)
		}
	}
}
