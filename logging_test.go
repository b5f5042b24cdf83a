package avrkernel

import (
	"testing"

	"github.com/joeycumines/logiface"
)

type recordingSink struct {
	level   logiface.Level
	message string
	fields  map[string]any
	calls   int
}

func (s *recordingSink) WriteKernelEvent(level logiface.Level, message string, fields map[string]any) {
	s.level = level
	s.message = message
	s.fields = fields
	s.calls++
}

func TestNewKernelLoggerNilSinkReturnsNil(t *testing.T) {
	if l := newKernelLogger(nil); l != nil {
		t.Fatalf("newKernelLogger(nil) = %v, want nil", l)
	}
}

func TestLogCatastrophicReachesEventSink(t *testing.T) {
	sink := &recordingSink{}
	k := NewKernel(WithEventSink(sink))

	k.logCatastrophic(ErrSchedulerHalted)

	if sink.calls != 1 {
		t.Fatalf("sink.calls = %d, want 1", sink.calls)
	}
	if _, ok := sink.fields["msg"]; !ok {
		t.Errorf("fields = %v, want a msg field (kernelEvent only implements AddField)", sink.fields)
	}
}

func TestLogPanicReachesEventSink(t *testing.T) {
	sink := &recordingSink{}
	k := NewKernel(WithEventSink(sink))

	k.logPanic(0, "boom")

	if sink.calls != 1 {
		t.Fatalf("sink.calls = %d, want 1", sink.calls)
	}
}

func TestLogDiagnosticsWithoutEventSinkDoesNotPanic(t *testing.T) {
	k := NewKernel()
	k.logCatastrophic(ErrSchedulerHalted)
	k.logPanic(0, "boom")
}
