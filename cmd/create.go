package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"

	"github.com/projecteru2/remote/registry"
	"github.com/projecteru2/remote/types"
	"github.com/projecteru2/remote/utils"
)

var newCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Configure a new instance",
		Long: `Register an instance under an alias. Missing values are prompted for
when stdin is a terminal. When an instance id is given it is verified
against the cloud before the record is saved.`,
		Args: cobra.NoArgs,
		RunE: runNew,
	}
	cmd.Flags().String("alias", "", "name used to refer to the instance")
	cmd.Flags().String("cloud", "", "cloud provider (aws)")
	cmd.Flags().String("profile", "", "credential profile (default \"default\")")
	cmd.Flags().String("instance-id", "", "existing cloud instance id, empty to provision later")
	cmd.Flags().String("type", "", "instance type")
	cmd.Flags().String("user", "", "SSH user name")
	cmd.Flags().String("key", "", "SSH private key path")
	cmd.Flags().String("region", "", "cloud region, defaults to the profile's")
	cmd.Flags().BoolP("active", "a", false, "make this the active instance")
	return cmd
}()

func runNew(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	logger := log.WithFunc("cmd.new")
	p := newPrompter()

	flag := func(name string) string {
		v, _ := cmd.Flags().GetString(name)
		return v
	}

	cloud, err := p.ask("Cloud provider", flag("cloud"), string(types.ProviderAWS))
	if err != nil {
		return err
	}
	kind, err := types.ParseProviderKind(cloud)
	if err != nil {
		return err
	}
	inst := types.Instance{Provider: kind, Region: flag("region"), Type: flag("type")}
	if inst.Profile, err = p.ask("Cloud profile", flag("profile"), "default"); err != nil {
		return err
	}
	if inst.InstanceID, err = p.ask("Instance ID", flag("instance-id"), ""); err != nil {
		return err
	}
	if inst.KeyPath, err = p.ask("SSH key path", flag("key"), ""); err != nil {
		return err
	}
	if inst.User, err = p.ask("SSH user name", flag("user"), ""); err != nil {
		return err
	}
	if inst.Alias, err = p.ask("Alias", flag("alias"), ""); err != nil {
		return err
	}
	if err := registry.ValidateAlias(inst.Alias); err != nil {
		return err
	}
	reg := registry.New(conf)
	if err := checkAliasFree(ctx, reg, inst.Alias); err != nil {
		return err
	}
	if inst.KeyPath != "" {
		keyPath, err := utils.ExpandHome(inst.KeyPath)
		if err != nil {
			return err
		}
		if _, err := os.Stat(keyPath); err != nil {
			return fmt.Errorf("key file %s: %w", inst.KeyPath, err)
		}
	}

	if inst.Provisioned() {
		prov, err := initProviders().Resolve(inst.Provider)
		if err != nil {
			return err
		}
		obs, err := prov.Describe(ctx, inst)
		if err != nil {
			return fmt.Errorf("verify %s: %w", inst.InstanceID, err)
		}
		inst.Observe(obs)
		logger.Debugf(ctx, "verified %s: %s", inst.InstanceID, obs.RawState)
	}

	if err := reg.Create(ctx, inst); err != nil {
		return err
	}
	if active, _ := cmd.Flags().GetBool("active"); active {
		if err := reg.SetActive(ctx, inst.Alias); err != nil {
			return err
		}
	} else if _, err := reg.GetActive(ctx); errors.Is(err, registry.ErrNoActiveInstance) {
		logger.Infof(ctx, "no active instance, run `remote instance %s` to select it", inst.Alias)
	}

	fmt.Printf("Created %s (%s %s) status %s\n", inst.Alias, inst.Provider, inst.InstanceID, colorStatus(inst.Status))
	return nil
}

// checkAliasFree fails early on a taken alias, before any cloud call.
// Create checks again under the lock.
func checkAliasFree(ctx context.Context, reg *registry.Registry, alias string) error {
	_, err := reg.Get(ctx, alias)
	switch {
	case err == nil:
		return fmt.Errorf("%q: %w", alias, registry.ErrDuplicateAlias)
	case errors.Is(err, registry.ErrNotFound):
		return nil
	default:
		return err
	}
}
