// Package cmd wires the protoframe command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Process exit statuses not taken from the child.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitInterrupted = 130
)

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// usageError marks configuration mistakes.
func usageError(err error) error {
	return &exitError{code: ExitUsage, err: err}
}

// CreateRootCmd creates the protoframe root command.
func CreateRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "protoframe",
		Short: "Build and supervise ffmpeg invocations",
		Long: `Builds an ffmpeg command line from inputs, global options and outputs, ` +
			`runs it as a supervised child process and reports its progress.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(CreateRunCmd())
	root.AddCommand(CreateVersionCmd())
	return root
}

// Execute runs the root command with args and returns the process exit status.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := CreateRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, "Error:", ee.err)
		}
		return ee.code
	}

	// Anything cobra itself rejects is a usage problem.
	fmt.Fprintln(stderr, "Error:", err)
	return ExitUsage
}

// Main is the program entry point.
func Main() {
	os.Exit(Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
