package avrkernel

import (
	"log"

	"github.com/joeycumines/logiface"
)

// kernelEvent is the concrete logiface.Event this package logs through when
// an EventSink is configured (WithEventSink): a minimal struct embedding
// logiface.UnimplementedEvent plus the handful of fields the kernel
// actually populates.
type kernelEvent struct {
	logiface.UnimplementedEvent
	level  logiface.Level
	fields []kernelField
}

type kernelField struct {
	key string
	val any
}

func (e *kernelEvent) Level() logiface.Level { return e.level }

func (e *kernelEvent) AddField(key string, val any) {
	e.fields = append(e.fields, kernelField{key: key, val: val})
}

// kernelEventFactory implements logiface's event-factory contract, handing
// out fresh kernelEvent values at the requested level.
type kernelEventFactory struct{}

func (kernelEventFactory) NewEvent(level logiface.Level) *kernelEvent {
	return &kernelEvent{level: level}
}

// EventSink receives each structured event the kernel logs, as its level
// and its fields. The log message is delivered through fields; the message
// argument is always empty.
type EventSink interface {
	WriteKernelEvent(level logiface.Level, message string, fields map[string]any)
}

// kernelLogger wraps a logiface.Logger instantiated with kernelEvent, used
// when an EventSink is configured; nil (not constructed) otherwise, in
// which case the kernel falls back to plain log.Printf diagnostics for its
// CRITICAL/ERROR lines.
type kernelLogger struct {
	logger *logiface.Logger[*kernelEvent]
	sink   EventSink
}

func newKernelLogger(sink EventSink) *kernelLogger {
	if sink == nil {
		return nil
	}
	writer := logiface.WriterFunc[*kernelEvent](func(e *kernelEvent) error {
		fields := make(map[string]any, len(e.fields))
		for _, f := range e.fields {
			fields[f.key] = f.val
		}
		sink.WriteKernelEvent(e.level, "", fields)
		return nil
	})
	l := logiface.New[*kernelEvent](
		logiface.WithEventFactory[*kernelEvent](kernelEventFactory{}),
		logiface.WithWriter[*kernelEvent](writer),
	)
	return &kernelLogger{logger: l, sink: sink}
}

// logCatastrophic reports the fatal selection-exhaustion path: via the
// configured EventSink if present, and always via log.Printf too, for the
// one fatal condition this kernel has.
func (k *Kernel) logCatastrophic(cause error) {
	log.Printf("CRITICAL: avrkernel: scheduler exhausted safety bound, halting: %v", cause)
	if k.log != nil {
		k.log.logger.Err().Log("scheduler halted")
	}
}

// logPanic reports a task entry function panicking inside its goroutine.
func (k *Kernel) logPanic(id TaskID, r any) {
	log.Printf("ERROR: avrkernel: task %d panicked: %v", id, r)
	if k.log != nil {
		k.log.logger.Err().Log("task panicked")
	}
}
