package run

import (
	"fmt"
	"sync"

	"github.com/sgn-hub/sgn-grade-hub/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// PROGRESS REPORTING
// ═══════════════════════════════════════════════════════════════════════════

// ProgressSink receives the ordered events of one run. Publish must not
// block the engine; buffering is the sink's concern. Events arrive with the
// sequence number already stamped.
type ProgressSink interface {
	Publish(event shared.ProgressEvent)
}

// ProgressSinkFunc adapts a function to the ProgressSink interface.
type ProgressSinkFunc func(event shared.ProgressEvent)

// Publish implements ProgressSink.
func (f ProgressSinkFunc) Publish(event shared.ProgressEvent) {
	f(event)
}

// Reporter is the append-only progress sink of one run. It stamps sequence
// numbers, guarantees a single terminal event, and drops anything reported
// after the terminal event. Safe for concurrent use, though the engine
// reports sequentially.
type Reporter struct {
	mu   sync.Mutex
	sink ProgressSink
	seq  int
	done bool
}

// NewReporter wraps a sink in sequence stamping and terminal-event
// protection.
func NewReporter(sink ProgressSink) *Reporter {
	return &Reporter{sink: sink}
}

func (r *Reporter) publish(event shared.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.seq++
	event.Seq = r.seq
	if event.IsTerminal() {
		r.done = true
	}
	r.sink.Publish(event)
}

// Infof reports an informational step narration.
func (r *Reporter) Infof(format string, args ...any) {
	r.publish(shared.NewProgressEvent(shared.LevelInfo, fmt.Sprintf(format, args...)))
}

// Successf reports a completed step or student.
func (r *Reporter) Successf(format string, args ...any) {
	r.publish(shared.NewProgressEvent(shared.LevelSuccess, fmt.Sprintf(format, args...)))
}

// Warnf reports a retried step or a skipped student.
func (r *Reporter) Warnf(format string, args ...any) {
	r.publish(shared.NewProgressEvent(shared.LevelWarning, fmt.Sprintf(format, args...)))
}

// Errorf reports a demoted student or a failed step.
func (r *Reporter) Errorf(format string, args ...any) {
	r.publish(shared.NewProgressEvent(shared.LevelError, fmt.Sprintf(format, args...)))
}

// Done emits the run's terminal event. Only the first call publishes;
// later calls are ignored.
func (r *Reporter) Done(success bool, message, classification string) {
	r.publish(shared.NewTerminalEvent(success, message, classification))
}

// Closed reports whether the terminal event has been emitted.
func (r *Reporter) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}
