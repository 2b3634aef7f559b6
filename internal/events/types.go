package events

import (
	"fmt"
	"time"

	"github.com/smazurov/protoframe/internal/ffmpeg"
)

// Event type constants.
const (
	TypeStarted uint32 = iota + 1
	TypeDiagnosticLine
	TypeProgress
	TypeFailed
	TypeCompleted
	TypeTerminated
)

// Event is a supervisor notification. Events are values and must not be
// modified by observers.
type Event interface {
	Type() uint32
	Run() string
}

// Meta identifies the run an event belongs to.
type Meta struct {
	RunID string
	At    time.Time
}

// Run returns the run identifier.
func (m Meta) Run() string { return m.RunID }

// Started is published once the child process has been spawned.
// Argv includes the executable tokens.
type Started struct {
	Meta
	Argv []string
	PID  int
}

// Type returns the event type identifier for Started.
func (Started) Type() uint32 { return TypeStarted }

// DiagnosticLine carries one line of the child's stderr as written.
type DiagnosticLine struct {
	Meta
	Text  string
	Level string
}

// Type returns the event type identifier for DiagnosticLine.
func (DiagnosticLine) Type() uint32 { return TypeDiagnosticLine }

// Progress follows the DiagnosticLine it was parsed from.
type Progress struct {
	Meta
	Sample ffmpeg.Sample
}

// Type returns the event type identifier for Progress.
func (Progress) Type() uint32 { return TypeProgress }

// Failed ends a run that could not be spawned or exited nonzero.
// Err is set for spawn failures, with ExitCode -1.
type Failed struct {
	Meta
	ExitCode int
	Err      error
	Detail   string // last diagnostic line, if any
}

// Type returns the event type identifier for Failed.
func (Failed) Type() uint32 { return TypeFailed }

// Reason describes why the run failed.
func (f Failed) Reason() string {
	if f.Err != nil {
		return fmt.Sprintf("spawn error: %v", f.Err)
	}
	if f.Detail != "" {
		return fmt.Sprintf("exit code %d: %s", f.ExitCode, f.Detail)
	}
	return fmt.Sprintf("exit code %d", f.ExitCode)
}

// Completed ends a run whose child exited zero.
type Completed struct {
	Meta
	Elapsed time.Duration
}

// Type returns the event type identifier for Completed.
func (Completed) Type() uint32 { return TypeCompleted }

// Terminated ends a run that was cancelled, whatever the child's exit code.
type Terminated struct {
	Meta
	ExitCode int
}

// Type returns the event type identifier for Terminated.
func (Terminated) Type() uint32 { return TypeTerminated }

// IsTerminal reports whether ev ends a run.
func IsTerminal(ev Event) bool {
	switch ev.Type() {
	case TypeFailed, TypeCompleted, TypeTerminated:
		return true
	}
	return false
}
