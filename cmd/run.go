package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/smazurov/protoframe/internal/command"
	"github.com/smazurov/protoframe/internal/config"
	"github.com/smazurov/protoframe/internal/console"
	"github.com/smazurov/protoframe/internal/events"
	"github.com/smazurov/protoframe/internal/logging"
	"github.com/smazurov/protoframe/internal/metrics"
	"github.com/smazurov/protoframe/internal/metrics/exporters"
	"github.com/smazurov/protoframe/internal/process"
	"github.com/smazurov/protoframe/internal/systemd"
)

// printerDrainTimeout bounds how long run waits for the console to catch up
// with the terminal event.
const printerDrainTimeout = 5 * time.Second

// RunOptions for the run command - flat structure with toml mapping.
type RunOptions struct {
	Config string `help:"Path to configuration file" short:"c" default:"protoframe.toml"`

	// Supervisor settings
	Executable      string        `help:"ffmpeg executable, optionally with leading arguments" default:"ffmpeg" toml:"ffmpeg.executable" env:"FFMPEG_EXECUTABLE"`
	GracefulTimeout time.Duration `help:"Time allowed after the stop signal before SIGKILL" default:"5s" toml:"process.graceful_timeout" env:"PROCESS_GRACEFUL_TIMEOUT"`
	StopSignal      string        `help:"Signal sent to ffmpeg on interrupt" default:"INT" toml:"process.stop_signal" env:"PROCESS_STOP_SIGNAL"`

	// Output settings
	MetricsAddr string `help:"Serve Prometheus metrics on this address (e.g. :9464)" toml:"metrics.addr" env:"METRICS_ADDR"`
	Quiet       bool   `help:"Only report failures" short:"q" toml:"console.quiet" env:"CONSOLE_QUIET"`
	Verbose     bool   `help:"Echo every line ffmpeg writes" short:"v" toml:"console.verbose" env:"CONSOLE_VERBOSE"`
	DryRun      bool   `help:"Print the ffmpeg command line and exit"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"warn" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingJournal    bool   `help:"Also log to the systemd journal" toml:"logging.journal" env:"LOGGING_JOURNAL"`
	LoggingFile       string `help:"Write the log to this file, truncating it, instead of stderr" toml:"logging.file" env:"LOGGING_FILE"`
	LoggingSupervisor string `help:"Supervisor logging level" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingFfmpeg     string `help:"Level for ffmpeg's own output in the log" toml:"logging.ffmpeg" env:"LOGGING_FFMPEG"`
}

func (o *RunOptions) loggingConfig(output io.Writer) logging.Config {
	modules := make(map[string]string)
	if o.LoggingSupervisor != "" {
		modules["supervisor"] = o.LoggingSupervisor
	}
	if o.LoggingFfmpeg != "" {
		modules["ffmpeg"] = o.LoggingFfmpeg
	}
	return logging.Config{
		Level:   o.LoggingLevel,
		Format:  o.LoggingFormat,
		Journal: o.LoggingJournal,
		Modules: modules,
		Output:  output,
	}
}

// CreateRunCmd creates the run command.
func CreateRunCmd() *cobra.Command {
	opts := &RunOptions{}
	var inv Invocation

	cmd := &cobra.Command{
		Use:   "run -i INPUT -o OUTPUT [flags]",
		Short: "Run one ffmpeg invocation",
		Long: `Builds the ffmpeg command line from the given inputs, global options and outputs, ` +
			`runs it and reports progress until it completes, fails or is interrupted. ` +
			`SIGINT and SIGTERM ask ffmpeg to stop and finalize its outputs.`,
		Example: `  protoframe run -i in.mp4 -g y -o out.mp4 -O c:v=libx264 -O crf=23
  protoframe run -i a.mp4 -o a.webm -o a.mkv -O 0:c:v=libvpx-vp9 -O 1:c=copy`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInvocation(cmd, opts, inv)
		},
	}

	flags := cmd.Flags()
	if err := config.BindFlags(flags, opts); err != nil {
		panic(err)
	}
	flags.StringArrayVarP(&inv.Inputs, "input", "i", nil, "Input file or URL (repeatable, in order)")
	flags.StringArrayVarP(&inv.Outputs, "output", "o", nil, "Output destination (repeatable, in order)")
	flags.StringArrayVarP(&inv.GlobalOptions, "global", "g", nil, "Global option NAME[=VALUE] (repeatable)")
	flags.StringArrayVarP(&inv.OutputOptions, "output-option", "O", nil, "Output option [N:]NAME[=VALUE]; without N applies to the last output")

	return cmd
}

func runInvocation(cmd *cobra.Command, opts *RunOptions, inv Invocation) error {
	if err := config.LoadConfig(opts, cmd); err != nil {
		return usageError(fmt.Errorf("load config: %w", err))
	}

	logOutput := cmd.ErrOrStderr()
	if opts.LoggingFile != "" {
		f, err := os.OpenFile(opts.LoggingFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return usageError(fmt.Errorf("log file: %w", err))
		}
		defer func() {
			logging.Initialize(opts.loggingConfig(cmd.ErrOrStderr()))
			f.Close()
		}()
		logOutput = f
	}
	logging.Initialize(opts.loggingConfig(logOutput))
	logger := logging.GetLogger("main")

	m, err := inv.BuildModel()
	if err != nil {
		return usageError(err)
	}
	if err := m.Validate(); err != nil {
		return usageError(err)
	}

	stopSignal, err := process.ParseSignal(opts.StopSignal)
	if err != nil {
		return usageError(err)
	}

	if opts.DryRun {
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", opts.Executable, quoteArgv(command.ToArgv(m)))
		return err
	}

	bus := events.NewWithLogger(logging.GetLogger("events"))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)
	collector.Attach(bus)

	sup, err := process.NewSupervisor(bus, &process.Options{
		Executable:      opts.Executable,
		GracefulTimeout: opts.GracefulTimeout,
		StopSignal:      stopSignal,
	})
	if err != nil {
		return usageError(err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.MetricsAddr != "" {
		srv, err := exporters.Listen(opts.MetricsAddr, registry, logging.GetLogger("metrics"))
		if err != nil {
			return usageError(fmt.Errorf("metrics listener: %w", err))
		}
		serveCtx, cancelServe := context.WithCancel(context.Background())
		served := make(chan struct{})
		go func() {
			defer close(served)
			if err := srv.Serve(serveCtx); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			cancelServe()
			<-served
		}()
	}

	relay := events.NewRelay(bus)
	defer relay.Close()

	printer := console.NewPrinter(cmd.OutOrStdout(), console.Options{
		Verbose: opts.Verbose,
		Quiet:   opts.Quiet,
	})
	unsubscribe := relay.Subscribe(printer.Handle)
	defer unsubscribe()

	notifier := systemd.NewNotifier(logging.GetLogger("systemd"))
	unsubscribeNotifier := relay.Subscribe(notifier.Handle)
	defer unsubscribeNotifier()

	runID, err := sup.Execute(m)
	if err != nil {
		return usageError(err)
	}
	logger.Debug("Run submitted", "run_id", runID)

	select {
	case <-sup.Done():
	case <-ctx.Done():
		logger.Info("Interrupted, stopping ffmpeg", "run_id", runID)
		if err := sup.Terminate(); err != nil && !errors.Is(err, process.ErrNotRunning) {
			logger.Warn("Terminate failed", "error", err)
		}
		<-sup.Done()
	}

	select {
	case <-printer.Done():
	case <-time.After(printerDrainTimeout):
		logger.Warn("Console did not receive the final event", "run_id", runID)
	}

	stats := collector.Snapshot()
	logger.Debug("Run finished", "run_id", runID, "samples", stats.Samples, "frame", stats.Frame)

	outcome, ok := printer.Outcome()
	if !ok {
		return &exitError{code: ExitFailure}
	}
	if code := outcome.ExitStatus(); code != ExitOK {
		return &exitError{code: code}
	}
	return nil
}
