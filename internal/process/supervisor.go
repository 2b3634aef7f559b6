package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/protoframe/internal/command"
	"github.com/smazurov/protoframe/internal/events"
	"github.com/smazurov/protoframe/internal/ffmpeg"
)

// Publisher receives supervisor events. *events.Bus implements it.
type Publisher interface {
	Publish(ev events.Event)
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Supervisor runs one ffmpeg invocation at a time and reports its lifecycle
// through a Publisher.
type Supervisor struct {
	bus    Publisher
	opts   Options
	prefix []string

	mu        sync.Mutex
	state     State
	proc      *Process
	runID     string
	runLogger *slog.Logger
	done      chan struct{}

	// out orders publications across runs: pushes happen under mu so
	// delivery order matches the order state changed.
	out outbox

	signals atomic.Int32 // stop signals sent, for tests
}

// NewSupervisor creates an idle supervisor publishing to bus.
func NewSupervisor(bus Publisher, opts *Options) (*Supervisor, error) {
	o := opts.withDefaults()

	prefix, err := parseCommand(o.Executable)
	if err != nil {
		return nil, fmt.Errorf("executable %q: %w", o.Executable, err)
	}
	if len(prefix) == 0 {
		return nil, fmt.Errorf("executable %q: empty command", o.Executable)
	}

	return &Supervisor{
		bus:    bus,
		opts:   o,
		prefix: prefix,
		state:  StateIdle,
		done:   closedChan,
	}, nil
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RunID returns the identifier of the current or most recent run.
func (s *Supervisor) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// Done returns a channel closed once the current run's terminal event has
// been published. It is already closed while idle.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Wait blocks until the current run has ended or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Execute validates m, snapshots it and spawns the tool. It returns once the
// child is running; the outcome arrives as a Completed, Failed or Terminated
// event. A spawn failure is published as Failed and is not returned.
//
// Called from an observer while an event is being delivered, Execute returns
// before Started is published: every subscriber sees the event in flight
// first, and the new run's events follow it.
func (s *Supervisor) Execute(m *command.Model) (string, error) {
	if m == nil {
		return "", fmt.Errorf("%w: nil model", ErrInvalidCommand)
	}
	if err := m.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return "", ErrAlreadyRunning
	}

	argv := append(slices.Clone(s.prefix), command.ToArgv(m.Clone())...)
	runID := uuid.NewString()
	logger := s.opts.Logger.With("run_id", runID)
	s.runID = runID

	proc, err := startProcess(argv, logger)
	if err != nil {
		logger.Error("Failed to start process", "error", err, "argv", argv)
		failed := events.Failed{Meta: meta(runID), ExitCode: -1, Err: err}
		s.out.push(func() { s.bus.Publish(failed) })
		s.mu.Unlock()
		s.out.flush()
		return runID, nil
	}

	done := make(chan struct{})
	s.state = StateRunning
	s.proc = proc
	s.runLogger = logger
	s.done = done
	s.signals.Store(0)
	logger.Info("Process started", "pid", proc.PID(), "argv", argv)
	started := events.Started{Meta: meta(runID), Argv: argv, PID: proc.PID()}
	s.out.push(func() {
		s.bus.Publish(started)
		go s.run(proc, runID, done, logger)
	})
	s.mu.Unlock()
	s.out.flush()

	return runID, nil
}

// Terminate asks the running child to stop and returns immediately. The
// child's process group gets the stop signal, then SIGKILL if it is still
// alive after the graceful timeout. Calling it again while terminating does
// nothing.
func (s *Supervisor) Terminate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle:
		return ErrNotRunning
	case StateTerminating:
		return nil
	}

	s.state = StateTerminating
	s.signals.Add(1)

	logger := s.runLogger
	logger.Info("Sending stop signal", "pid", s.proc.PID(), "signal", s.opts.StopSignal.String())
	if err := s.proc.signal(s.opts.StopSignal); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logger.Warn("Failed to send stop signal", "error", err)
	}

	go s.escalate(s.proc, s.done, logger)
	return nil
}

// run drains the child's stderr, waits for it to exit and publishes the
// terminal event. Nothing is published for the run after it returns.
func (s *Supervisor) run(proc *Process, runID string, done chan struct{}, logger *slog.Logger) {
	defer close(done)

	started := time.Now()
	var lastMessage string

	proc.streamOutput(func(line string) {
		level, msg := ffmpeg.ParseLogLevel(line)
		sample := ffmpeg.ParseLine(msg)
		s.logOutput(level, msg, sample.Structured(), runID)
		if !sample.Structured() {
			lastMessage = msg
		}

		at := meta(runID)
		s.publish(func() {
			s.bus.Publish(events.DiagnosticLine{Meta: at, Text: line, Level: level})
			if sample.Structured() {
				s.bus.Publish(events.Progress{Meta: at, Sample: sample})
			}
		})
	})

	exitCode := proc.wait()

	s.mu.Lock()
	cancelled := s.state == StateTerminating

	var ev events.Event
	switch {
	case cancelled:
		logger.Info("Process terminated", "exit_code", exitCode)
		ev = events.Terminated{Meta: meta(runID), ExitCode: exitCode}
	case exitCode == 0:
		logger.Info("Process completed", "elapsed", time.Since(started))
		ev = events.Completed{Meta: meta(runID), Elapsed: time.Since(started)}
	default:
		logger.Error("Process failed", "exit_code", exitCode, "detail", lastMessage)
		ev = events.Failed{Meta: meta(runID), ExitCode: exitCode, Detail: lastMessage}
	}

	// Idle before delivery so observers of the terminal event may Execute.
	s.state = StateIdle
	s.proc = nil
	delivered := s.out.push(func() { s.bus.Publish(ev) })
	s.mu.Unlock()
	s.out.flush()
	<-delivered
}

// publish delivers fn's events in order with every other publication and
// waits until they have reached all subscribers.
func (s *Supervisor) publish(fn func()) {
	delivered := s.out.push(fn)
	s.out.flush()
	<-delivered
}

// escalate force-kills proc if it outlives the graceful timeout.
func (s *Supervisor) escalate(proc *Process, done <-chan struct{}, logger *slog.Logger) {
	timer := time.NewTimer(s.opts.GracefulTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", s.opts.GracefulTimeout)
		if err := proc.kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			logger.Error("Failed to kill process", "error", err)
		}
	}
}

// logOutput logs a child line at the level ffmpeg gave it. Progress lines
// are frequent and go to debug.
func (s *Supervisor) logOutput(level, msg string, progress bool, runID string) {
	logger := s.opts.OutputLogger
	if progress {
		logger.Debug(msg, "run_id", runID)
		return
	}
	switch level {
	case "panic", "fatal", "error":
		logger.Error(msg, "run_id", runID)
	case "warning":
		logger.Warn(msg, "run_id", runID)
	case "verbose", "debug", "trace":
		logger.Debug(msg, "run_id", runID)
	default:
		logger.Info(msg, "run_id", runID)
	}
}

func meta(runID string) events.Meta {
	return events.Meta{RunID: runID, At: time.Now()}
}
