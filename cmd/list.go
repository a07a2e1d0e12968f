package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/projecteru2/remote/registry"
	"github.com/projecteru2/remote/types"
)

var listCmd = &cobra.Command{
	Use:   "ls [CLOUD [PROFILE]]",
	Short: "List configured instances, or instances visible to a cloud profile",
	Long: `Without arguments, list the instances in the registry from cache; no
cloud calls are made. With a cloud name, list every instance visible to
PROFILE (default "default"), registered or not.`,
	Args: cobra.MaximumNArgs(2), //nolint:mnd
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		profile := "default"
		if len(args) > 1 {
			profile = args[1]
		}
		return runListCloud(cmd, args[0], profile)
	}

	ctx := commandContext(cmd)
	snap, err := registry.New(conf).List(ctx)
	if err != nil {
		return err
	}
	if snap.Len() == 0 {
		fmt.Println("No instances configured.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0) //nolint:mnd
	_, _ = fmt.Fprintln(w, "ACTIVE\tALIAS\tCLOUD\tPROFILE\tINSTANCE ID\tTYPE\tSTATUS\tREFRESHED")
	for alias, inst := range snap.All() {
		marker := ""
		if alias == snap.Active() {
			marker = "*"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			marker, alias, inst.Provider, inst.Profile, inst.InstanceID, inst.Type,
			colorStatus(inst.Status), formatRefreshed(inst.LastRefreshed))
	}
	w.Flush() //nolint:errcheck,gosec
	return nil
}

func runListCloud(cmd *cobra.Command, cloud, profile string) error {
	ctx := commandContext(cmd)
	kind, err := types.ParseProviderKind(cloud)
	if err != nil {
		return err
	}
	prov, err := initProviders().Resolve(kind)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0) //nolint:mnd
	defer w.Flush() //nolint:errcheck
	_, _ = fmt.Fprintf(w, "Instances on %s (%s):\n", kind, profile)
	_, _ = fmt.Fprintln(w, "INSTANCE ID\tNAME\tTYPE\tSTATUS\tZONE\tPUBLIC DNS\tLAUNCHED")
	var n int
	for d, err := range prov.ListAvailable(ctx, profile) {
		if err != nil {
			return fmt.Errorf("list %s (%s): %w", kind, profile, err)
		}
		n++
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.InstanceID, d.Name, d.InstanceType, colorStatus(d.Status), d.Zone, d.PublicDNS, formatLaunched(d.LaunchedAt))
	}
	if n == 0 {
		_, _ = fmt.Fprintln(w, "(none)")
	}
	return nil
}

func formatLaunched(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return humanize.Time(*t)
}
