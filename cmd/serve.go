package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/storyteller/internal/api"
	"github.com/JakeFAU/storyteller/internal/logging"
	"github.com/JakeFAU/storyteller/internal/storage/postgres"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve recorded runs over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Store.DSN == "" {
				return errors.New("serve: store.dsn is required")
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return err
			}
			restore := logging.Install(logger)
			defer restore()

			ctx := cmd.Context()
			repo, err := postgres.NewEventLog(ctx, postgres.EventLogConfig{DSN: cfg.Store.DSN, Table: cfg.Store.Table})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer repo.Close()
			if err := repo.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			server := api.NewServer(repo, api.ServerConfig{
				APIKey:  cfg.Server.APIKey,
				Metrics: promhttp.Handler(),
			}, logger.Named("api"))
			srv := &http.Server{
				Addr:              cfg.Server.Listen,
				Handler:           server.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("http server started", zap.String("addr", cfg.Server.Listen))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			case <-ctx.Done():
			}
			logger.Info("shutdown initiated")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Reporter.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
}
