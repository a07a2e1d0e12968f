package cmd

import (
	"fmt"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"

	"github.com/projecteru2/remote/registry"
	"github.com/projecteru2/remote/types"
)

var rmCmd = &cobra.Command{
	Use:   "rm ALIAS",
	Short: "Remove an instance from the registry (the cloud instance is left alone)",
	Args:  cobra.ExactArgs(1),
	RunE:  runRM,
}

func runRM(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	logger := log.WithFunc("cmd.rm")
	alias := args[0]

	reg := registry.New(conf)
	inst, err := reg.Get(ctx, alias)
	if err != nil {
		return err
	}
	if err := reg.Remove(ctx, alias); err != nil {
		return err
	}
	if inst.Provisioned() && inst.Status != types.StatusTerminated {
		logger.Warnf(ctx, "%s (%s) still exists in the cloud (last seen %s); terminate it there if it is no longer needed",
			alias, inst.InstanceID, inst.Status)
	}
	fmt.Printf("Removed instance: %s\n", alias)
	return nil
}

var instanceCmd = &cobra.Command{
	Use:   "instance ALIAS",
	Short: "Set the active instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		if err := registry.New(conf).SetActive(ctx, args[0]); err != nil {
			return fmt.Errorf("%w, you may need to create it first with `remote new`", err)
		}
		fmt.Printf("Active instance: %s\n", args[0])
		return nil
	},
}
