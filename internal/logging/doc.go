// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package. Records go to stderr as text or
// JSON, and additionally to the systemd journal when Config.Journal is set and
// journald is reachable.
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		Modules: map[string]string{
//			"ffmpeg":     "debug", // child process output
//			"supervisor": "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("supervisor").With("run_id", id)
//	logger.Info("Process started", "pid", pid)
//
// # Modules
//
//	main       - CLI wiring
//	supervisor - process lifecycle
//	ffmpeg     - lines read from the child's stderr, at the level ffmpeg reported
//	events     - observer failures
//	metrics    - metrics endpoint
//
// # Configuration
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//	journal = false
//	supervisor = "info"
//	ffmpeg = "warn"
//
// Journal availability is checked via [github.com/coreos/go-systemd/v22/journal.Enabled].
// Entries are tagged with SYSLOG_IDENTIFIER=protoframe, and attributes become
// PROTOFRAME_* fields, so one run can be selected by its id:
//
//	journalctl -t protoframe PROTOFRAME_RUN_ID=<id>
package logging
