package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/social-content/pkg/socialcontent/api"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var sweepInterval time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := cfg.Build(ctx, logger)
			if err != nil {
				return fmt.Errorf("failed to build service: %w", err)
			}
			defer rt.Close()

			httpServer := &http.Server{
				Addr: fmt.Sprintf(":%s", cfg.Port),
				Handler: api.NewRouter(api.RouterConfig{
					Service:        rt.Service,
					Sweeper:        rt.Sweeper,
					Logger:         logger,
					MaxUploadBytes: cfg.MaxUploadBytes,
					FilesPrefix:    cfg.PublicBaseURL,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			if sweepInterval > 0 {
				go runSweepLoop(ctx, rt.Sweeper, sweepInterval, logger)
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("social-content server starting",
					"port", cfg.Port,
					"env", cfg.Environment,
					"database", cfg.DatabaseType,
					"storage", cfg.Storage.Type,
					"feed_store", cfg.FeedStore)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			logger.Info("server exiting")
			return nil
		},
	}

	cmd.Flags().DurationVar(&sweepInterval, "sweep-interval", 0, "apply the purge sweep on this interval (0 disables)")
	return cmd
}
