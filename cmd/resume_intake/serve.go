package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-intake/internal/server"
)

// shutdownGrace bounds how long in-flight tasks may finish on exit
const shutdownGrace = 30 * time.Second

func newServeCmd(opts *globalOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long:  `Start an HTTP server that accepts resume uploads, reports task progress and serves the processing history.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, logger, true)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				if err := a.Shutdown(shutdownCtx); err != nil {
					logger.Error().Err(err).Msg("shutdown incomplete")
				}
			}()

			go a.registry.RunReaper(ctx, cfg.Tasks.ReapInterval)

			srvOpts, err := server.OptionsFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("invalid server configuration: %w", err)
			}
			return server.New(a.service, srvOpts, logger).Run(ctx)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "Port to listen on")
	return cmd
}
