package avrkernel

import "testing"

func TestTaskStateTryTransition(t *testing.T) {
	s := newTaskState(StatusReady)
	if !s.TryTransition(StatusReady, StatusYield) {
		t.Fatal("expected Ready->Yield to succeed")
	}
	if s.Load() != StatusYield {
		t.Fatalf("Load() = %v, want Yield", s.Load())
	}
	if s.TryTransition(StatusReady, StatusBlocked) {
		t.Fatal("expected Ready->Blocked to fail from Yield")
	}
}

func TestIsSelectable(t *testing.T) {
	cases := []struct {
		status TaskStatus
		want   bool
	}{
		{StatusNone, false},
		{StatusBlocked, false},
		{StatusKill, false},
		{StatusScheduled, true},
		{StatusReady, true},
		{StatusYield, true},
		{StatusSleep, true},
		{StatusMain, true},
	}
	for _, c := range cases {
		if got := c.status.isSelectable(); got != c.want {
			t.Errorf("%v.isSelectable() = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestDecrementsByTick(t *testing.T) {
	cases := []struct {
		status TaskStatus
		want   bool
	}{
		{StatusNone, false},
		{StatusBlocked, false},
		{StatusSleep, false},
		{StatusReady, true},
		{StatusYield, true},
		{StatusScheduled, true},
		{StatusMain, true},
	}
	for _, c := range cases {
		if got := c.status.decrementsByTick(); got != c.want {
			t.Errorf("%v.decrementsByTick() = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestTaskStatusString(t *testing.T) {
	if StatusYield.String() != "Yield" {
		t.Errorf("String() = %q, want Yield", StatusYield.String())
	}
	if TaskStatus(99).String() != "Unknown" {
		t.Errorf("String() of unrecognized status = %q, want Unknown", TaskStatus(99).String())
	}
}
