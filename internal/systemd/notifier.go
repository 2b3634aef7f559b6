// Package systemd reports run progress to the service manager over sd_notify.
package systemd

import (
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/smazurov/protoframe/internal/console"
	"github.com/smazurov/protoframe/internal/events"
	"github.com/smazurov/protoframe/internal/logging"
)

// DefaultStatusInterval limits how often progress updates STATUS=.
const DefaultStatusInterval = time.Second

// notifyFunc matches daemon.SdNotify.
type notifyFunc func(unsetEnvironment bool, state string) (bool, error)

// Notifier turns supervisor events into sd_notify messages. Outside a
// Type=notify unit it sends nothing.
type Notifier struct {
	notify   notifyFunc
	logger   logging.Logger
	interval time.Duration

	mu         sync.Mutex
	lastStatus time.Time
	disabled   bool
}

// NewNotifier creates a Notifier that sends to $NOTIFY_SOCKET.
func NewNotifier(logger logging.Logger) *Notifier {
	return &Notifier{
		notify:   daemon.SdNotify,
		logger:   logger,
		interval: DefaultStatusInterval,
	}
}

// Handle sends the notification for one event.
func (n *Notifier) Handle(ev events.Event) {
	switch e := ev.(type) {
	case events.Started:
		n.send(daemon.SdNotifyReady + "\n" + status(fmt.Sprintf("Running pid %d", e.PID)))
	case events.Progress:
		if e.Sample.Progress == nil || !n.due(e.At) {
			return
		}
		n.send(status(console.FormatProgress(e.Sample.Progress)))
	case events.Completed:
		n.send(daemon.SdNotifyStopping + "\n" + status("Completed in "+e.Elapsed.Round(time.Millisecond).String()))
	case events.Failed:
		n.send(daemon.SdNotifyStopping + "\n" + status("Failed: "+e.Reason()))
	case events.Terminated:
		n.send(daemon.SdNotifyStopping + "\n" + status(fmt.Sprintf("Terminated, exit code %d", e.ExitCode)))
	}
}

// due reports whether a progress STATUS may be sent at t.
func (n *Notifier) due(t time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.lastStatus.IsZero() && t.Sub(n.lastStatus) < n.interval {
		return false
	}
	n.lastStatus = t
	return true
}

func (n *Notifier) send(state string) {
	n.mu.Lock()
	if n.disabled {
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()

	sent, err := n.notify(false, state)
	switch {
	case err != nil:
		n.logger.Warn("sd_notify failed", "error", err)
	case !sent:
		// No notification socket; stop trying.
		n.mu.Lock()
		n.disabled = true
		n.mu.Unlock()
	}
}

func status(s string) string {
	return "STATUS=" + s
}
