package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/DeBrosOfficial/logwatch/pkg/errors"
	"github.com/DeBrosOfficial/logwatch/pkg/registry"
)

func newOverridesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "overrides",
		Short: "Manage per-resource overrides of a log stream",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <stream-id>",
			Short: "List the overrides of a stream",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				mon, err := a.newMonitor(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer mon.Close()

				list, err := mon.ListOverrides(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No overrides found")
					return nil
				}
				printOverrides(cmd.OutOrStdout(), list)
				return nil
			},
		},
		&cobra.Command{
			Use:   "create <stream-id> <resource> key=value...",
			Short: "Attach an override to a stream",
			Args:  cobra.MinimumNArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				values, err := parsePairs(args[2:])
				if err != nil {
					return err
				}
				mon, err := a.newMonitor(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer mon.Close()

				o, err := mon.CreateOverride(cmd.Context(), args[0], args[1], values)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ Created override %s on stream %s\n", o.ID, o.StreamID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "update <stream-id> <override-id> key=value...",
			Short: "Replace the values of an override",
			Args:  cobra.MinimumNArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				values, err := parsePairs(args[2:])
				if err != nil {
					return err
				}
				mon, err := a.newMonitor(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer mon.Close()

				o, err := mon.UpdateOverride(cmd.Context(), args[0], args[1], values)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ Updated override %s\n", o.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <stream-id> <override-id>",
			Short: "Remove an override",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				mon, err := a.newMonitor(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				defer mon.Close()

				if err := mon.DeleteOverride(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ Deleted override %s\n", args[1])
				return nil
			},
		},
	)
	return cmd
}

// parsePairs turns key=value arguments into a map.
func parsePairs(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errors.NewValidationError("overrides", "expected key=value", arg)
		}
		out[k] = v
	}
	return out, nil
}

func printOverrides(out io.Writer, list []registry.LogStreamOverride) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tRESOURCE\tOVERRIDES")
	for _, o := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", o.ID, o.ResourceID, formatPairs(o.Overrides))
	}
	w.Flush()
}

func formatPairs(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + m[k]
	}
	return strings.Join(parts, ",")
}
