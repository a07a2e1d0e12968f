package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/projecteru2/remote/version"
)

var versionCmd = func() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version, git revision, build timestamp and registry location",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			if short, _ := cmd.Flags().GetBool("short"); short {
				fmt.Println(version.VERSION)
				return
			}
			fmt.Print(version.String())
			fmt.Printf("Registry:       %s\n", conf.RegistryPath)
		},
	}
	cmd.Flags().Bool("short", false, "print only the version number")
	return cmd
}()
