package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/projecteru2/remote/lifecycle"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the active instance and wait until it is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runLifecycle(cmd, "start", (*lifecycle.Controller).Start)
	},
}

var terminateCmd = &cobra.Command{
	Use:   "terminate",
	Short: "Terminate the cloud instance behind the active alias (irreversible)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runLifecycle(cmd, "terminate", (*lifecycle.Controller).Terminate)
	},
}

var resizeCmd = &cobra.Command{
	Use:   "resize INSTANCE_TYPE",
	Short: "Change the type of the stopped active instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle(cmd, "resize", func(c *lifecycle.Controller, ctx context.Context) (lifecycle.Result, error) {
			return c.Resize(ctx, args[0])
		})
	},
}

// runLifecycle is the shared handler for commands that drive one
// transition of the active instance.
func runLifecycle(cmd *cobra.Command, name string, fn func(*lifecycle.Controller, context.Context) (lifecycle.Result, error)) error {
	ctx := commandContext(cmd)
	ctrl, stop := initController()
	start := time.Now()
	res, err := fn(ctrl, ctx)
	stop()
	if err != nil {
		return err
	}
	printResult(name, res, start)
	return nil
}
