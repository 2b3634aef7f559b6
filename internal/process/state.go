package process

import "errors"

// State is the supervisor's lifecycle state.
type State string

// Supervisor states.
const (
	StateIdle        State = "idle"        // No child process
	StateRunning     State = "running"     // Child spawned, output being drained
	StateTerminating State = "terminating" // Stop signal sent, waiting for exit
)

// Errors returned synchronously by Supervisor.
var (
	ErrAlreadyRunning = errors.New("supervisor already running")
	ErrNotRunning     = errors.New("supervisor not running")
	ErrInvalidCommand = errors.New("invalid command")
)
