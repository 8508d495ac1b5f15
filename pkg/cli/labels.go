package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLabelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "labels <key> <resource>...",
		Short: "List the values of a log label across resources",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mon, err := a.newMonitor(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer mon.Close()

			values, err := mon.LabelValues(cmd.Context(), args[0], args[1:]...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(values) == 0 {
				fmt.Fprintf(out, "No values found for label %s\n", args[0])
				return nil
			}
			for _, v := range values {
				fmt.Fprintln(out, v)
			}
			return nil
		},
	}
}
