package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "logwatch %s", a.build.Version)
			if a.build.Commit != "" {
				fmt.Fprintf(out, " (commit %s)", a.build.Commit)
			}
			if a.build.Date != "" {
				fmt.Fprintf(out, " built %s", a.build.Date)
			}
			fmt.Fprintln(out)
		},
	}
}
