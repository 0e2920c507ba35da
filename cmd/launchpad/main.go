// Package main is the entry point for the launchpad CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relicta-tech/launchpad/internal/cli"
)

// Version information set by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// shutdownTimeout is the maximum time to wait for graceful shutdown.
const shutdownTimeout = 30 * time.Second

func main() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	cli.SetVersionInfo(version, commit, date)

	code := run(context.Background(), sigChan, cli.ExecuteContext, cli.Cleanup, os.Stderr, os.Exit)
	os.Exit(code)
}

// run executes the CLI and maps its outcome to a process exit code. The first
// signal cancels the context; a second one, or the shutdown timeout, forces
// exit.
func run(parent context.Context, sigChan <-chan os.Signal, execute func(context.Context) error,
	cleanup func(), stderr io.Writer, exit func(int)) int {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	done := make(chan struct{})
	defer close(done)

	if sigChan != nil {
		go func() {
			var sig os.Signal
			select {
			case sig = <-sigChan:
			case <-done:
				return
			}
			fmt.Fprintf(stderr, "\nReceived signal %v, initiating graceful shutdown...\n", sig)
			cancel()

			shutdownTimer := time.NewTimer(shutdownTimeout)
			defer shutdownTimer.Stop()

			select {
			case <-done:
			case <-shutdownTimer.C:
				fmt.Fprintf(stderr, "\nShutdown timeout (%v) exceeded, forcing exit\n", shutdownTimeout)
				exit(1)
			case sig = <-sigChan:
				fmt.Fprintf(stderr, "\nReceived second signal %v, forcing exit\n", sig)
				exit(1)
			}
		}()
	}

	err := execute(ctx)
	cleanup()

	if err == nil {
		return 0
	}
	if ctx.Err() != nil {
		fmt.Fprintln(stderr, "Operation canceled")
		return 130
	}
	var exitErr *cli.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	// SilenceErrors is set on the root command.
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}
