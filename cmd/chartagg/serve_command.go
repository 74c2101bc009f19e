package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/chartagg/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the latest chart over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Address
			}

			logger := slog.Default()
			p, cleanup, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := []server.Option{server.WithLogger(logger)}
			if cfg.Metrics.Enabled {
				opts = append(opts, server.WithMetrics())
			}
			srv := server.New(p, opts...)

			runCtx := cmd.Context()
			if cfg.Server.RefreshOnStart {
				go func() {
					if _, err := srv.Refresh(runCtx); err != nil {
						logger.Warn("initial refresh failed", "error", err)
					}
				}()
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(addr) }()

			select {
			case err := <-errCh:
				return err
			case <-runCtx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			logger.Info("shutting down http server")
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to server.address)")
	return cmd
}
