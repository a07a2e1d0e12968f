package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// exitInterrupted is the conventional status for a process killed by SIGINT.
const exitInterrupted = 130

// newCommandContext creates the root command context. The first SIGINT or
// SIGTERM cancels it so in-flight lifecycle polling can record the last
// observed state; a second one exits immediately.
func newCommandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(context.Background())
	sigs := make(chan os.Signal, 2) //nolint:mnd
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case s := <-sigs:
			cancel(fmt.Errorf("received %s: %w", s, context.Canceled))
		case <-done:
			return
		}
		select {
		case <-sigs:
			fmt.Fprintln(os.Stderr, "interrupted twice, exiting without saving state")
			os.Exit(exitInterrupted)
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(sigs)
		close(done)
		cancel(nil)
	}
}

// commandContext returns the command context, falling back to Background.
func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
