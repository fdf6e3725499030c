// Package shared contains common domain types, errors, events, and value
// objects used across all domain packages.
package shared

import (
	"time"
)

// ProgressLevel classifies a progress event.
type ProgressLevel string

const (
	// LevelInfo is an informational step narration.
	LevelInfo ProgressLevel = "info"

	// LevelSuccess marks a completed step or student.
	LevelSuccess ProgressLevel = "success"

	// LevelWarning marks a retried step or a skipped student.
	LevelWarning ProgressLevel = "warning"

	// LevelError marks a demoted student or a failed step.
	LevelError ProgressLevel = "error"

	// LevelDone is the terminal outcome. Emitted exactly once per run,
	// always last.
	LevelDone ProgressLevel = "done"
)

// ProgressEvent is one entry of a run's ordered progress stream. The
// sequence number defines a total order matching the orchestrator's logical
// step order.
type ProgressEvent struct {
	// Seq is the position of the event within its run, starting at 1.
	Seq int `json:"seq"`

	// Level classifies the event.
	Level ProgressLevel `json:"level"`

	// Message is the human-readable progress line.
	Message string `json:"message"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`

	// Success is set on the terminal event only.
	Success *bool `json:"success,omitempty"`

	// Classification carries the fatal error classification on failed
	// terminal events.
	Classification string `json:"classification,omitempty"`
}

// IsTerminal reports whether this is the run's terminal event.
func (e ProgressEvent) IsTerminal() bool {
	return e.Level == LevelDone
}

// WireType returns the record type used on the progress stream: every event
// is a "log" record except the terminal "done" record.
func (e ProgressEvent) WireType() string {
	if e.IsTerminal() {
		return "done"
	}
	return "log"
}

// NewProgressEvent builds a non-terminal progress event. Seq is stamped by
// the reporter, not the caller.
func NewProgressEvent(level ProgressLevel, message string) ProgressEvent {
	return ProgressEvent{
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewTerminalEvent builds the run's terminal event.
func NewTerminalEvent(success bool, message, classification string) ProgressEvent {
	return ProgressEvent{
		Level:          LevelDone,
		Message:        message,
		Timestamp:      time.Now(),
		Success:        &success,
		Classification: classification,
	}
}
