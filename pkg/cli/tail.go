package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/logwatch/pkg/api"
	"github.com/DeBrosOfficial/logwatch/pkg/auth"
	"github.com/DeBrosOfficial/logwatch/pkg/config"
	"github.com/DeBrosOfficial/logwatch/pkg/errors"
	"github.com/DeBrosOfficial/logwatch/pkg/export"
	"github.com/DeBrosOfficial/logwatch/pkg/logging"
	"github.com/DeBrosOfficial/logwatch/pkg/logs"
	"github.com/DeBrosOfficial/logwatch/pkg/monitor"
	"github.com/DeBrosOfficial/logwatch/pkg/stream"
	"github.com/DeBrosOfficial/logwatch/pkg/tui"
)

type tailOptions struct {
	plain  bool
	lines  int
	level  string
	source string
	search string
}

func (o tailOptions) filter() (logs.Filter, error) {
	f := logs.Filter{Source: o.source, Search: o.search}
	if o.level != "" {
		f.MinLevel = logs.ParseLevel(o.level)
		if !f.MinLevel.Valid() {
			return logs.Filter{}, errors.NewValidationError("level", "must be one of debug, info, warn, error, fatal", o.level)
		}
	}
	return f, nil
}

func newTailCmd(a *app) *cobra.Command {
	var opts tailOptions

	cmd := &cobra.Command{
		Use:   "tail <resource>...",
		Short: "Follow live logs for one or more resources",
		Long:  "Open the interactive viewer on the live log feed of the given resources. With --plain, lines are printed to stdout instead.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := opts.filter()
			if err != nil {
				return err
			}
			cfg, err := a.load()
			if err != nil {
				return err
			}
			tokens, err := a.tokens()
			if err != nil {
				return err
			}
			if opts.plain {
				logger := a.consoleLogger(cmd.ErrOrStderr())
				return tailPlain(cmd.Context(), cmd.OutOrStdout(), cfg, tokens, logger, args, filter, opts.lines)
			}
			logger, err := a.fileLogger()
			if err != nil {
				return err
			}
			return runInteractive(cmd.Context(), cfg, tokens, logger, args, filter, opts.lines)
		},
	}

	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Print lines instead of opening the viewer")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", api.DefaultRecentLimit, "Number of historical lines to load first (0 to skip)")
	cmd.Flags().StringVarP(&opts.level, "level", "l", "", "Minimum level to show")
	cmd.Flags().StringVar(&opts.source, "source", "", "Only show entries from this source")
	cmd.Flags().StringVarP(&opts.search, "search", "s", "", "Only show entries containing this text")
	return cmd
}

// runInteractive subscribes a monitor to ids and hands it to the viewer.
func runInteractive(ctx context.Context, cfg *config.Config, tokens auth.TokenSource, logger *logging.ColoredLogger, ids []string, filter logs.Filter, lines int) error {
	mon, err := monitor.New(cfg, tokens, monitor.WithLogger(logger))
	if err != nil {
		return err
	}
	defer mon.Close()

	mon.ApplyFilter(filter)
	if err := mon.SelectResources(ctx, ids); err != nil {
		return err
	}
	if lines > 0 {
		// History is best effort; the live feed works without it.
		if _, err := mon.LoadRecent(ctx, lines); err != nil {
			logger.ComponentWarn(logging.ComponentCLI, "Initial load failed", zap.Error(err))
		}
	}
	return tui.Run(ctx, mon)
}

// linePrinter is a stream.Sink writing matching entries as text lines.
type linePrinter struct {
	mu     sync.Mutex
	w      io.Writer
	filter logs.Filter
}

func (p *linePrinter) Append(entries ...logs.LogEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range entries {
		if p.filter.Match(e) {
			fmt.Fprintln(p.w, export.FormatLine(e))
		}
	}
}

// tailPlain prints recent history and then the live feed until ctx is
// cancelled or the connection fails for good.
func tailPlain(ctx context.Context, out io.Writer, cfg *config.Config, tokens auth.TokenSource, logger *logging.ColoredLogger, ids []string, filter logs.Filter, lines int) error {
	printer := &linePrinter{w: out, filter: filter}

	if lines > 0 {
		client, err := monitor.NewAPIClient(cfg, tokens, logger)
		if err != nil {
			return err
		}
		recent, err := client.RecentLogs(ctx, api.LogQuery{ResourceIDs: ids, Limit: lines})
		if err != nil {
			return err
		}
		printer.Append(recent...)
	}

	dialer, err := monitor.NewDialer(cfg)
	if err != nil {
		return err
	}
	failed := make(chan error, 1)
	manager := stream.NewManager(stream.Options{
		URL:                    cfg.StreamURL(),
		Tokens:                 tokens,
		Dialer:                 dialer,
		MaxRetries:             cfg.Stream.MaxRetries,
		Backoff:                stream.NewBackoff(cfg.Stream.BaseBackoff, cfg.Stream.MaxBackoff),
		HeartbeatTimeout:       cfg.Stream.HeartbeatTimeout,
		ProtocolErrorThreshold: cfg.Stream.ProtocolErrorThreshold,
		Logger:                 logger,
		OnState: func(s stream.State) {
			if s.Status != stream.StatusFailed {
				return
			}
			err := s.LastError
			if err == nil {
				err = errors.NewConnectionFaultError("stream", nil)
			}
			select {
			case failed <- err:
			default:
			}
		},
	}, printer)
	defer manager.Close()

	if err := manager.Subscribe(ctx, ids); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-failed:
		return err
	}
}
