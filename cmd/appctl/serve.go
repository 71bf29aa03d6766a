package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/appctl"
	"github.com/loykin/appctl/internal/server"
	"github.com/spf13/cobra"
)

// ServeFlags holds the resident-endpoint flags.
type ServeFlags struct {
	Listen   string
	BasePath string
}

// newServeCmd runs the operation catalog as a long-lived local HTTP endpoint.
func newServeCmd(g *GlobalFlags) *cobra.Command {
	f := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the operation catalog over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := g.loadConfig()
			if err != nil {
				return err
			}
			engine, err := appctl.New(cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			srv, err := server.NewServer(f.Listen, f.BasePath, engine)
			if err != nil {
				return err
			}
			log.Info("serving operations", "addr", f.Listen, "base", f.BasePath)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&f.Listen, "listen", "127.0.0.1:8787", "listen address")
	cmd.Flags().StringVar(&f.BasePath, "base-path", "/api", "URL prefix for all endpoints")
	return cmd
}
