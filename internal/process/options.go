package process

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/smazurov/protoframe/internal/logging"
)

// Defaults applied by NewSupervisor.
const (
	DefaultExecutable      = "ffmpeg"
	DefaultGracefulTimeout = 5 * time.Second
	DefaultStopSignal      = unix.SIGINT
)

// Options configures a Supervisor. The zero value is usable.
type Options struct {
	// Executable locates the tool. It may carry leading arguments, e.g.
	// "nice -n 10 ffmpeg", split with shell-like quoting.
	Executable string

	// GracefulTimeout is how long a terminating child gets before SIGKILL.
	GracefulTimeout time.Duration

	// StopSignal is sent on Terminate. ffmpeg finalizes its outputs on SIGINT.
	StopSignal unix.Signal

	// Logger for lifecycle messages. Defaults to the "supervisor" module logger.
	Logger *slog.Logger

	// OutputLogger receives the child's stderr lines at the level ffmpeg
	// reported. Defaults to the "ffmpeg" module logger.
	OutputLogger *slog.Logger
}

func (o *Options) withDefaults() Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.Executable == "" {
		out.Executable = DefaultExecutable
	}
	if out.GracefulTimeout <= 0 {
		out.GracefulTimeout = DefaultGracefulTimeout
	}
	if out.StopSignal == 0 {
		out.StopSignal = DefaultStopSignal
	}
	if out.Logger == nil {
		out.Logger = logging.GetLogger("supervisor")
	}
	if out.OutputLogger == nil {
		out.OutputLogger = logging.GetLogger("ffmpeg")
	}
	return out
}

// ParseSignal converts "INT", "SIGTERM" or "term" to a signal.
func ParseSignal(name string) (unix.Signal, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(n, "SIG") {
		n = "SIG" + n
	}
	sig := unix.SignalNum(n)
	if sig == 0 {
		return 0, fmt.Errorf("unknown signal %q", name)
	}
	return sig, nil
}
