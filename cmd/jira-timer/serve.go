package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"jira-timer/internal/app"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the timer service and its local control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, logger, cfg)
			if err != nil {
				logger.Error("failed to initialize app", slog.String("error", err.Error()))
				return err
			}

			go application.WatchEvents(ctx)

			srv := application.HTTPServer(cfg.HTTPAddr)
			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", slog.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			var serveErr error
			select {
			case <-ctx.Done():
				logger.Info("shutting down")
			case serveErr = <-errCh:
				logger.Error("http server failed", slog.String("error", serveErr.Error()))
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.SubmitTimeout+5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", slog.String("error", err.Error()))
			}
			if err := application.Close(shutdownCtx); err != nil {
				return err
			}
			return serveErr
		},
	}
}
