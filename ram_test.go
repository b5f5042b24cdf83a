package avrkernel

import "testing"

func TestCarveStackDeterministicPerSlot(t *testing.T) {
	r1, err := carveStack(3)
	if err != nil {
		t.Fatalf("carveStack(3) error: %v", err)
	}
	r2, err := carveStack(3)
	if err != nil {
		t.Fatalf("carveStack(3) error: %v", err)
	}
	if r1 != r2 {
		t.Fatalf("carveStack(3) not deterministic: %+v != %+v", r1, r2)
	}
	if r1.top-r1.base != TaskStackSize {
		t.Fatalf("region size = %d, want %d", r1.top-r1.base, TaskStackSize)
	}
}

func TestCarveStackDisjointAcrossSlots(t *testing.T) {
	r0, err := carveStack(0)
	if err != nil {
		t.Fatalf("carveStack(0) error: %v", err)
	}
	r1, err := carveStack(1)
	if err != nil {
		t.Fatalf("carveStack(1) error: %v", err)
	}
	if r0.base < r1.top {
		t.Fatalf("regions overlap: slot0=%+v slot1=%+v", r0, r1)
	}
}

func TestCarveStackOutOfRangeFails(t *testing.T) {
	_, err := carveStack(1 << 20)
	if err != ErrStackOutOfRange {
		t.Fatalf("err = %v, want ErrStackOutOfRange", err)
	}
}

func TestInRAM(t *testing.T) {
	if !inRAM(0, len(ram)) {
		t.Error("the full arena should be in range")
	}
	if inRAM(-1, 1) {
		t.Error("negative offset should be out of range")
	}
	if inRAM(len(ram)-1, 2) {
		t.Error("a range extending past the end should be out of range")
	}
}
