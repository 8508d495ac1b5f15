package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DeBrosOfficial/logwatch/pkg/api"
	"github.com/DeBrosOfficial/logwatch/pkg/errors"
	"github.com/DeBrosOfficial/logwatch/pkg/export"
	"github.com/DeBrosOfficial/logwatch/pkg/logs"
	"github.com/DeBrosOfficial/logwatch/pkg/monitor"
)

func newRecentCmd(a *app) *cobra.Command {
	var (
		lines  int
		level  string
		dest   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "recent <resource>...",
		Short: "Print or export the most recent log entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			tokens, err := a.tokens()
			if err != nil {
				return err
			}
			logger := a.consoleLogger(cmd.ErrOrStderr())

			q := api.LogQuery{ResourceIDs: args, Limit: lines}
			if level != "" {
				q.Level = logs.ParseLevel(level)
				if !q.Level.Valid() {
					return errors.NewValidationError("level", "must be one of debug, info, warn, error, fatal", level)
				}
			}

			client, err := monitor.NewAPIClient(cfg, tokens, logger)
			if err != nil {
				return err
			}
			entries, err := client.RecentLogs(cmd.Context(), q)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dest == "" {
				for _, e := range entries {
					fmt.Fprintln(out, export.FormatLine(e))
				}
				return nil
			}

			fallback, err := export.ParseFormat(cfg.Export.DefaultFormat)
			if err != nil {
				return err
			}
			f := export.InferFormat(dest, fallback)
			if format != "" {
				if f, err = export.ParseFormat(format); err != nil {
					return err
				}
			}
			path, err := export.NewWriter(cfg.Export.Directory, logger).Write(entries, dest, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "✅ Exported %d entries to %s\n", len(entries), path)
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", api.DefaultRecentLimit, "Number of entries to fetch")
	cmd.Flags().StringVarP(&level, "level", "l", "", "Minimum level to fetch")
	cmd.Flags().StringVarP(&dest, "export", "o", "", "Write the entries to this file instead of stdout")
	cmd.Flags().StringVar(&format, "format", "", "Export format: text, jsonl, csv (default: from the file extension)")
	return cmd
}
