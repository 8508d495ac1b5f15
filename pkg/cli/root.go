// Package cli implements the logwatch command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/logwatch/pkg/auth"
	"github.com/DeBrosOfficial/logwatch/pkg/config"
	"github.com/DeBrosOfficial/logwatch/pkg/errors"
	"github.com/DeBrosOfficial/logwatch/pkg/logging"
	"github.com/DeBrosOfficial/logwatch/pkg/monitor"
)

// BuildInfo is the version metadata injected through -ldflags.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// app carries the global flags and the values derived from them.
type app struct {
	build      BuildInfo
	configPath string
	apiURL     string
	logLevel   string

	cfg    *config.Config
	logger *logging.ColoredLogger
}

// NewRootCommand builds the logwatch command tree.
func NewRootCommand(build BuildInfo) *cobra.Command {
	a := &app{build: build}

	root := &cobra.Command{
		Use:           "logwatch",
		Short:         "Real-time log monitoring for remote services",
		Long:          "Follow, filter and export logs from remote resources, and manage persistent log stream configuration.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.logwatch/config.yaml)")
	root.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "override api.base_url")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(
		newTailCmd(a),
		newRecentCmd(a),
		newStreamsCmd(a),
		newOverridesCmd(a),
		newLabelsCmd(a),
		newDemoCmd(a),
		newVersionCmd(a),
	)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute(build BuildInfo) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(build)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return exitCode(err)
	}
	return 0
}

// Exit statuses by error category.
const (
	exitFailure = 1
	exitUsage   = 2
	exitAuth    = 3
	exitNetwork = 4
)

func exitCode(err error) int {
	switch errors.GetCategory(errors.GetErrorCode(err)) {
	case errors.CategoryClient:
		return exitUsage
	case errors.CategoryAuth:
		return exitAuth
	case errors.CategoryNetwork:
		return exitNetwork
	default:
		return exitFailure
	}
}

// load reads the configuration once and applies flag overrides.
func (a *app) load() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}

	path := a.configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath("config.yaml"); err != nil {
			return nil, err
		}
	} else {
		var err error
		if path, err = config.ExpandPath(path); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if a.apiURL != "" {
		cfg.API.BaseURL = a.apiURL
		cfg.API.WSURL = ""
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg
	return cfg, nil
}

// consoleLogger logs to w. Used by commands that keep the terminal.
func (a *app) consoleLogger(w io.Writer) *logging.ColoredLogger {
	if a.logger == nil {
		a.logger = logging.NewColoredLogger(w, logging.ParseLevel(a.cfg.Logging.Level), true)
	}
	return a.logger
}

// fileLogger logs to logging.file so output does not corrupt the TUI.
func (a *app) fileLogger() (*logging.ColoredLogger, error) {
	path := a.cfg.Logging.File
	if path == "" {
		dir, err := config.EnsureConfigDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "logwatch.log")
	} else {
		var err error
		if path, err = config.ExpandPath(path); err != nil {
			return nil, err
		}
	}
	logger, err := logging.NewFileLogger(path, a.cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	a.logger = logger
	return logger, nil
}

func (a *app) tokens() (auth.TokenSource, error) {
	return auth.NewTokenSource(a.cfg.API.BaseURL)
}

// newMonitor loads the config and builds a monitor logging to w.
func (a *app) newMonitor(w io.Writer) (*monitor.Monitor, error) {
	cfg, err := a.load()
	if err != nil {
		return nil, err
	}
	tokens, err := a.tokens()
	if err != nil {
		return nil, err
	}
	logger := a.consoleLogger(w)
	mon, err := monitor.New(cfg, tokens, monitor.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	logger.ComponentDebug(logging.ComponentCLI, "Monitor ready", zap.String("base_url", cfg.API.BaseURL))
	return mon, nil
}
