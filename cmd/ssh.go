package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/projecteru2/remote/remote"
)

var sshCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ssh [-p PORT]... [-- COMMAND...]",
		Short: "SSH into the active instance, optionally forwarding ports",
		Long: `Open an SSH session to the active instance, which must be running.
Each -p PORT forwards localhost:PORT to the same port on the instance.
Arguments after -- are run as a remote command instead of a shell.`,
		RunE: runSSH,
	}
	cmd.Flags().IntSliceP("port", "p", nil, "port to forward to the instance (repeatable)")
	return cmd
}()

func runSSH(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	ports, _ := cmd.Flags().GetIntSlice("port")
	switch n := cmd.ArgsLenAtDash(); {
	case n < 0 && len(args) > 0:
		return fmt.Errorf("remote command must follow --, got %v", args)
	case n > 0:
		return fmt.Errorf("unexpected arguments before --: %v", args[:n])
	}

	ctrl, stop := initController()
	ep, err := ctrl.Connection(ctx)
	stop()
	if err != nil {
		return err
	}
	return remote.New(conf).SSH(ctx, ep, ports, args)
}

var uploadCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "upload LOCAL REMOTE",
		Aliases: []string{"up"},
		Short:   "Copy a file to the active instance",
		Args:    cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfer(cmd, remote.Transfer{Local: args[0], Remote: args[1], Upload: true})
		},
	}
	cmd.Flags().BoolP("recursive", "r", false, "copy directories recursively")
	return cmd
}()

var downloadCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "download REMOTE LOCAL",
		Aliases: []string{"down"},
		Short:   "Copy a file from the active instance",
		Args:    cobra.ExactArgs(2), //nolint:mnd
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfer(cmd, remote.Transfer{Local: args[1], Remote: args[0]})
		},
	}
	cmd.Flags().BoolP("recursive", "r", false, "copy directories recursively")
	return cmd
}()

func runTransfer(cmd *cobra.Command, t remote.Transfer) error {
	ctx := commandContext(cmd)
	t.Recursive, _ = cmd.Flags().GetBool("recursive")

	ctrl, stop := initController()
	ep, err := ctrl.Connection(ctx)
	stop()
	if err != nil {
		return err
	}
	return remote.New(conf).Copy(ctx, ep, t)
}
