package main

import (
	"log/slog"

	"github.com/loykin/appctl"
	"github.com/loykin/appctl/internal/logger"
	"github.com/spf13/cobra"
)

// GlobalFlags holds the persistent flags shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
}

func buildRoot() *cobra.Command {
	g := &GlobalFlags{}
	root := &cobra.Command{
		Use:           "appctl",
		Short:         "Launch, observe, and drive desktop applications",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&g.ConfigPath, "config", "c", "appctl.toml", "config file path")
	root.PersistentFlags().StringVar(&g.LogLevel, "log-level", "", "diagnostic verbosity (debug, info, warn, error)")

	root.AddCommand(newOperationCmd(g))
	root.AddCommand(newOperationsCmd())
	root.AddCommand(newServeCmd(g))
	root.AddCommand(newCaptureCmd())
	return root
}

// loadConfig resolves the effective config for this invocation. The
// --log-level flag outranks both file and environment.
func (g *GlobalFlags) loadConfig() (appctl.Config, *slog.Logger, error) {
	cfg, err := appctl.LoadConfig(g.ConfigPath)
	if err != nil {
		return appctl.Config{}, nil, err
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	return cfg, logger.New(cfg.LogLevel), nil
}
