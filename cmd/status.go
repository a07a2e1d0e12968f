package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/projecteru2/remote/types"
)

var statusCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Refresh and show the status of the active instance",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
	cmd.Flags().BoolP("all", "a", false, "show every configured instance")
	return cmd
}()

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	ctrl, stop := initController()
	defer stop()

	if all, _ := cmd.Flags().GetBool("all"); !all {
		inst, err := ctrl.Status(ctx)
		if err != nil {
			return err
		}
		printStatus(os.Stdout, inst)
		return nil
	}

	rows, err := ctrl.StatusAll(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No instances configured.")
		return nil
	}
	var failed int
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0) //nolint:mnd
	_, _ = fmt.Fprintln(w, "ALIAS\tINSTANCE ID\tTYPE\tSTATUS\tPUBLIC DNS\tERROR")
	for _, r := range rows {
		status, errMsg := colorStatus(r.Instance.Status), ""
		if r.Err != nil {
			failed++
			errMsg = fmt.Sprintf("%s: %v", errorKind(r.Err), r.Err)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Alias, r.Instance.InstanceID, r.Instance.Type, status, r.Instance.PublicDNS, errMsg)
	}
	w.Flush() //nolint:errcheck,gosec
	if failed > 0 {
		return fmt.Errorf("status of %d/%d instances could not be refreshed", failed, len(rows))
	}
	return nil
}

func printStatus(out io.Writer, inst types.Instance) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0) //nolint:mnd
	_, _ = fmt.Fprintf(w, "Alias:\t%s\n", inst.Alias)
	_, _ = fmt.Fprintf(w, "Cloud:\t%s (%s)\n", inst.Provider, inst.Profile)
	_, _ = fmt.Fprintf(w, "Instance ID:\t%s\n", inst.InstanceID)
	_, _ = fmt.Fprintf(w, "Type:\t%s\n", inst.Type)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", colorStatus(inst.Status))
	_, _ = fmt.Fprintf(w, "Public DNS:\t%s\n", inst.PublicDNS)
	_, _ = fmt.Fprintf(w, "SSH user:\t%s\n", inst.User)
	_, _ = fmt.Fprintf(w, "SSH key:\t%s\n", inst.KeyPath)
	_, _ = fmt.Fprintf(w, "Refreshed:\t%s\n", formatRefreshed(inst.LastRefreshed))
	w.Flush() //nolint:errcheck,gosec
}
