package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/projecteru2/remote/lifecycle"
	"github.com/projecteru2/remote/types"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the active instance and wait until it is stopped",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runLifecycle(cmd, "stop", (*lifecycle.Controller).Stop)
	},
}

var provisionCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Launch a cloud instance for the active alias and wait until it is running",
		Long: `Launch a new cloud instance for the active alias. The alias must have
been created with "remote new" without an instance id.`,
		Args: cobra.NoArgs,
		RunE: runProvision,
	}
	cmd.Flags().String("image", "", "machine image id (required)")
	cmd.Flags().String("type", "", "instance type, defaults to the alias's type")
	cmd.Flags().String("subnet", "", "subnet id")
	cmd.Flags().String("key-name", "", "cloud key pair name")
	cmd.Flags().StringSlice("security-group", nil, "security group id (repeatable)")
	cmd.Flags().StringToString("tag", nil, "extra tag key=value (repeatable)")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}()

func runProvision(cmd *cobra.Command, _ []string) error {
	req := types.ProvisionRequest{}
	req.Image, _ = cmd.Flags().GetString("image")
	req.InstanceType, _ = cmd.Flags().GetString("type")
	req.SubnetID, _ = cmd.Flags().GetString("subnet")
	req.KeyName, _ = cmd.Flags().GetString("key-name")
	req.SecurityGroups, _ = cmd.Flags().GetStringSlice("security-group")
	req.Tags, _ = cmd.Flags().GetStringToString("tag")
	return runLifecycle(cmd, "provision", func(c *lifecycle.Controller, ctx context.Context) (lifecycle.Result, error) {
		return c.Provision(ctx, req)
	})
}
