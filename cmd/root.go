// Package cmd implements the storyteller command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/storyteller/internal/app"
	"github.com/JakeFAU/storyteller/internal/config"
	"github.com/JakeFAU/storyteller/internal/logging"
	"github.com/JakeFAU/storyteller/internal/telemetry"
)

type rootOptions struct {
	configPath string
	rounds     int
	players    int
	mode       string
	handlers   []string
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "storyteller",
		Short: "Report events to a background listener and wait for them to be handled.",
		Long: `storyteller plays a dice game (or a scripted status sequence) and reports every
step as an event. A listener goroutine hands the events to the configured
handlers and the command exits only once every reported event was handled.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&opts.mode, "mode", "", "shutdown handshake: finalize or rendezvous")
	cmd.PersistentFlags().StringSliceVar(&opts.handlers, "handlers", nil, "handlers to run: json,terminal,log,metrics,publish,store")

	cmd.AddCommand(newPlayCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	return cmd
}

// loadConfig reads the config file and applies flags the user set.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("rounds") {
		cfg.Game.Rounds = o.rounds
	}
	if flags.Changed("players") {
		cfg.Game.Players = o.players
	}
	if flags.Changed("mode") {
		cfg.Reporter.Mode = o.mode
	}
	if flags.Changed("handlers") {
		cfg.Handlers = o.handlers
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// runApp builds the logger and App for cfg, calls fn, and tears both down.
func runApp(cmd *cobra.Command, cfg config.Config, fn func(context.Context, *app.App) (app.Result, error)) (err error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return err
	}
	restore := logging.Install(logger)
	defer restore()

	ctx := cmd.Context()
	tp, err := telemetry.InitTracerProvider(ctx, "storyteller")
	if err != nil {
		return err
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
			logger.Warn("tracer shutdown", zap.Error(shutdownErr))
		}
	}()

	a, err := app.New(ctx, cfg, logger, app.Options{
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("initialize application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("close application", zap.Error(closeErr))
			err = errors.Join(err, closeErr)
		}
	}()

	if cfg.Metrics.Listen != "" {
		shutdown := serveMetrics(cfg.Metrics.Listen, a.MetricsHandler(), logger)
		defer shutdown()
	}

	res, err := fn(ctx, a)
	if err != nil {
		return err
	}
	logger.Info("run complete",
		zap.String("run_id", res.RunID),
		zap.Int64("throws", res.Summary.Throws),
		zap.Int64("wins", res.Summary.Wins),
		zap.Int64("losses", res.Summary.Losses),
	)
	return nil
}

// serveMetrics exposes handler on addr until the returned function is called.
func serveMetrics(addr string, handler http.Handler, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "storyteller: %v\n", err)
		stop()
		os.Exit(1)
	}
}
