package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/smazurov/protoframe/internal/ffmpeg"
	"github.com/smazurov/protoframe/internal/logging"
)

// maxLineSize bounds a single diagnostic line.
const maxLineSize = 1024 * 1024

// Process is one spawned child. It owns the child's stderr pipe.
type Process struct {
	argv   []string
	cmd    *exec.Cmd
	stderr io.ReadCloser
	logger logging.Logger
}

// startProcess spawns argv in its own process group with stdin and stdout
// bound to the null device.
func startProcess(argv []string, logger logging.Logger) (*Process, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	return &Process{argv: argv, cmd: cmd, stderr: stderr, logger: logger}, nil
}

// PID returns the child's process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// signal sends sig to the child's process group.
func (p *Process) signal(sig unix.Signal) error {
	err := unix.Kill(-p.PID(), sig)
	if errors.Is(err, unix.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}

// kill force-kills the child's process group.
func (p *Process) kill() error {
	return p.signal(unix.SIGKILL)
}

// streamOutput calls handle for each stderr line until the stream closes.
func (p *Process) streamOutput(handle func(line string)) {
	scanner := bufio.NewScanner(p.stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	scanner.Split(ffmpeg.ScanLines)

	for scanner.Scan() {
		handle(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "source", "stderr", "error", err)
		// Keep the pipe drained so the child never blocks on a full buffer.
		_, _ = io.Copy(io.Discard, p.stderr)
	}
}

// wait blocks until the child exits and returns its exit code.
// Must be called after streamOutput has returned.
func (p *Process) wait() int {
	return exitCodeFromError(p.cmd.Wait())
}

// exitCodeFromError extracts exit code from process error.
// A child killed by a signal reports 128 plus the signal number, as a shell
// would. Other errors report 1.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return exitErr.ExitCode()
	}
	return 1
}

// parseCommand parses a command string into arguments
// Handles quoted strings and basic escaping.
func parseCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)

	runes := []rune(strings.TrimSpace(command))

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case (r == ' ' || r == '\t') && !inQuote:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}

	if inQuote {
		return nil, fmt.Errorf("unclosed quote in command")
	}

	return args, nil
}
