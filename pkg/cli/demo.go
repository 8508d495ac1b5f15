package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/DeBrosOfficial/logwatch/pkg/auth"
	"github.com/DeBrosOfficial/logwatch/pkg/demo"
	"github.com/DeBrosOfficial/logwatch/pkg/logging"
	"github.com/DeBrosOfficial/logwatch/pkg/logs"
)

func newDemoCmd(a *app) *cobra.Command {
	var (
		addr      string
		interval  time.Duration
		history   int
		serveOnly bool
	)

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a local demo log API and open the viewer on it",
		Long:  "Start a local server that generates log traffic for demo resources, then open the interactive viewer against it. With --serve-only the server runs until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}

			var logger *logging.ColoredLogger
			if serveOnly {
				logger = a.consoleLogger(cmd.ErrOrStderr())
			} else if logger, err = a.fileLogger(); err != nil {
				return err
			}

			token := "demo-" + uuid.NewString()
			srv := demo.NewServer(demo.Options{
				Token:             token,
				Interval:          interval,
				HeartbeatInterval: cfg.Stream.HeartbeatTimeout / 3,
				History:           history,
				Seed:              uint64(time.Now().UnixNano()),
				Logger:            logger,
			})
			baseURL, err := srv.Start(addr)
			if err != nil {
				return err
			}
			defer srv.Stop()

			ctx := cmd.Context()
			if serveOnly {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Demo API listening on %s\n", baseURL)
				fmt.Fprintf(out, "  export LOGWATCH_API_KEY=%s\n", token)
				fmt.Fprintf(out, "  logwatch --api-url %s tail %s\n", baseURL, demo.DefaultResources[0])
				<-ctx.Done()
				return nil
			}

			local := *cfg
			local.API.BaseURL = baseURL
			local.API.WSURL = ""
			return runInteractive(ctx, &local, auth.StaticToken(token), logger, demo.DefaultResources, logs.Filter{}, 50)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:0", "Listen address")
	cmd.Flags().DurationVar(&interval, "interval", 500*time.Millisecond, "Time between generated batches")
	cmd.Flags().IntVar(&history, "history", 200, "Entries generated up front for the initial load")
	cmd.Flags().BoolVar(&serveOnly, "serve-only", false, "Only run the server")
	return cmd
}
