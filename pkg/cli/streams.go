package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/DeBrosOfficial/logwatch/pkg/errors"
	"github.com/DeBrosOfficial/logwatch/pkg/logs"
	"github.com/DeBrosOfficial/logwatch/pkg/registry"
)

func newStreamsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "streams",
		Short: "Manage persistent log stream configuration",
	}
	cmd.AddCommand(
		newStreamsListCmd(a),
		newStreamsCreateCmd(a),
		newStreamsUpdateCmd(a),
		newStreamsDeleteCmd(a),
	)
	return cmd
}

func newStreamsListCmd(a *app) *cobra.Command {
	var resource string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List log streams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mon, err := a.newMonitor(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer mon.Close()

			streams, err := mon.Streams(cmd.Context(), resource)
			if err != nil {
				return err
			}
			if len(streams) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No log streams found")
				return nil
			}
			printStreams(cmd.OutOrStdout(), streams)
			return nil
		},
	}
	cmd.Flags().StringVarP(&resource, "resource", "r", "", "Only list streams for this resource")
	return cmd
}

func newStreamsCreateCmd(a *app) *cobra.Command {
	var level string
	cmd := &cobra.Command{
		Use:   "create <name> <resource>",
		Short: "Create a log stream",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := parseLevelFlag(level)
			if err != nil {
				return err
			}
			mon, err := a.newMonitor(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer mon.Close()

			ls, err := mon.CreateStream(cmd.Context(), args[0], args[1], lvl)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Created stream %s (%s)\n", ls.Name, ls.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&level, "level", "l", "", "Minimum level the stream keeps")
	return cmd
}

func newStreamsUpdateCmd(a *app) *cobra.Command {
	var (
		name    string
		level   string
		source  string
		enabled bool
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a log stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch registry.StreamPatch
			flags := cmd.Flags()
			if flags.Changed("name") {
				patch.Name = &name
			}
			if flags.Changed("level") {
				lvl, err := parseLevelFlag(level)
				if err != nil {
					return err
				}
				patch.Level = &lvl
			}
			if flags.Changed("source") {
				patch.Source = &source
			}
			if flags.Changed("enabled") {
				patch.Enabled = &enabled
			}
			if patch.IsEmpty() {
				return errors.NewValidationError("flags", "nothing to update; pass --name, --level, --source or --enabled", nil)
			}

			mon, err := a.newMonitor(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer mon.Close()

			ls, err := mon.UpdateStream(cmd.Context(), args[0], patch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Updated stream %s (%s)\n", ls.Name, ls.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVarP(&level, "level", "l", "", "New minimum level (empty for any)")
	cmd.Flags().StringVar(&source, "source", "", "New source filter (empty for any)")
	cmd.Flags().BoolVar(&enabled, "enabled", true, "Enable or disable the stream")
	return cmd
}

func newStreamsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a log stream and its overrides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mon, err := a.newMonitor(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer mon.Close()

			if err := mon.DeleteStream(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Deleted stream %s\n", args[0])
			return nil
		},
	}
}

func printStreams(out io.Writer, streams []registry.LogStream) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tRESOURCE\tLEVEL\tSOURCE\tENABLED\tCREATED")
	for _, s := range streams {
		created := ""
		if !s.CreatedAt.IsZero() {
			created = s.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			s.ID,
			s.Name,
			s.ResourceID,
			orDash(s.Filter.Level.String()),
			orDash(s.Filter.Source),
			s.Enabled,
			created,
		)
	}
	w.Flush()
}

// parseLevelFlag accepts an empty string as "any level".
func parseLevelFlag(s string) (logs.Level, error) {
	if s == "" {
		return "", nil
	}
	lvl := logs.ParseLevel(s)
	if !lvl.Valid() {
		return "", errors.NewValidationError("level", "must be one of debug, info, warn, error, fatal", s)
	}
	return lvl, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
