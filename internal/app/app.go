// Package app wires configuration, logging and handlers around a
// Reporter/Listener pair and drives the dice demo through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/storyteller/internal/clock/system"
	"github.com/JakeFAU/storyteller/internal/config"
	"github.com/JakeFAU/storyteller/internal/dice"
	"github.com/JakeFAU/storyteller/internal/id/uuid"
	pubsubpublisher "github.com/JakeFAU/storyteller/internal/publisher/pubsub"
	"github.com/JakeFAU/storyteller/internal/storage/postgres"
	"github.com/JakeFAU/storyteller/pkg/storyteller"
	"github.com/JakeFAU/storyteller/pkg/storyteller/handlers"
)

// Publisher is the publish handler's backend plus its shutdown hook.
type Publisher interface {
	handlers.Publisher
	Close() error
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Options injects collaborators. Zero values fall back to the process
// defaults: stdout/stderr, a fresh Prometheus registry, the system
// clock, UUIDv7 run IDs, and backends dialed from configuration.
type Options struct {
	Stdout    io.Writer
	Stderr    io.Writer
	Registry  *prometheus.Registry
	Clock     dice.Clock
	IDs       IDGenerator
	Publisher Publisher
	EventLog  handlers.EventLog
}

// Result describes one finished run.
type Result struct {
	RunID   string
	Summary dice.Summary
}

// App holds the long-lived services shared by every run.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	opts       Options
	metrics    *storyteller.Metrics
	prometheus *handlers.Prometheus[dice.Event]
	closers    []func() error
}

// New builds an App from a validated config. Backends that are not injected
// through opts are connected here and released by Close.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Clock == nil {
		opts.Clock = system.New()
	}
	if opts.IDs == nil {
		opts.IDs = uuid.New()
	}

	a := &App{cfg: cfg, logger: logger, opts: opts}

	metrics, err := storyteller.NewMetrics(opts.Registry)
	if err != nil {
		return nil, fmt.Errorf("listener metrics: %w", err)
	}
	a.metrics = metrics

	if cfg.Enabled(config.HandlerMetrics) {
		a.prometheus, err = handlers.NewPrometheus(opts.Registry, dice.Sample)
		if err != nil {
			return nil, fmt.Errorf("metrics handler: %w", err)
		}
	}

	if cfg.Enabled(config.HandlerPublish) && a.opts.Publisher == nil {
		logger.Info("connecting to pub/sub", zap.String("project", cfg.Publish.ProjectID), zap.String("topic", cfg.Publish.Topic))
		pub, err := pubsubpublisher.Dial(ctx, cfg.Publish.ProjectID, logger.Named("pubsub"))
		if err != nil {
			return nil, fmt.Errorf("publish handler: %w", err)
		}
		a.opts.Publisher = pub
		a.closers = append(a.closers, pub.Close)
	}

	if cfg.Enabled(config.HandlerStore) && a.opts.EventLog == nil {
		logger.Info("connecting to postgres", zap.String("table", cfg.Store.Table))
		eventLog, err := postgres.NewEventLog(ctx, postgres.EventLogConfig{DSN: cfg.Store.DSN, Table: cfg.Store.Table})
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("store handler: %w", err)
		}
		a.closers = append(a.closers, func() error {
			eventLog.Close()
			return nil
		})
		if err := eventLog.EnsureSchema(ctx); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("store handler: %w", err)
		}
		a.opts.EventLog = eventLog
	}

	return a, nil
}

// MetricsHandler serves the listener and handler collectors.
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.opts.Registry, promhttp.HandlerOpts{})
}

// Close releases every backend New connected.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Play runs the dice game through the configured handlers.
func (a *App) Play(ctx context.Context) (Result, error) {
	total := a.cfg.Game.Rounds * a.cfg.Game.Players
	var summary dice.Summary
	runID, err := a.run(ctx, total, func(ctx context.Context, runID string, reporter storyteller.EventReporter[dice.Event]) error {
		game, err := dice.NewGame(dice.Config{
			Rounds:       a.cfg.Game.Rounds,
			Players:      a.cfg.Game.Players,
			WinThreshold: a.cfg.Game.WinThreshold,
			Delay:        a.cfg.Game.Delay,
			Seed:         a.cfg.Game.Seed,
			RunID:        runID,
		}, a.opts.Clock, a.logger.Named("dice"))
		if err != nil {
			return err
		}
		summary, err = game.Play(ctx, reporter)
		return err
	})
	return Result{RunID: runID, Summary: summary}, err
}

// Status reports the scripted status sequence through the configured handlers.
func (a *App) Status(ctx context.Context) (Result, error) {
	runID, err := a.run(ctx, 0, func(_ context.Context, runID string, reporter storyteller.EventReporter[dice.Event]) error {
		return dice.StatusScript(reporter, a.opts.Clock, runID)
	})
	return Result{RunID: runID}, err
}

const tracerName = "github.com/JakeFAU/storyteller/internal/app"

type produceFunc func(ctx context.Context, runID string, reporter storyteller.EventReporter[dice.Event]) error

// run starts a listener, lets produce report into it, then performs the
// shutdown handshake. Production errors do not skip the handshake.
func (a *App) run(ctx context.Context, total int, produce produceFunc) (string, error) {
	runID, err := a.opts.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("run id: %w", err)
	}
	logger := a.logger.With(zap.String("run_id", runID))

	ctx, span := otel.Tracer(tracerName).Start(ctx, "storyteller.run", trace.WithAttributes(
		attribute.String("run_id", runID),
		attribute.String("mode", string(a.cfg.Mode())),
	))
	defer span.End()
	fail := func(err error) (string, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("run failed", zap.Error(err))
		return runID, err
	}

	handler, err := a.buildHandler(ctx, runID, total, logger)
	if err != nil {
		return fail(err)
	}

	reporter, listener := storyteller.NewPair[dice.Event](a.cfg.Mode(),
		storyteller.WithLogger(logger.Named("listener")),
		storyteller.WithMetrics(a.metrics),
		storyteller.WithAckPolicy(a.cfg.AckPolicy()),
	)
	fin, err := listener.RunHandler(handler)
	if err != nil {
		return runID, fmt.Errorf("start listener: %w", err)
	}
	logger.Info("run started", zap.String("mode", string(a.cfg.Mode())), zap.Strings("handlers", a.cfg.Handlers))

	produceErr := produce(ctx, runID, reporter)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Reporter.ShutdownTimeout)
	defer cancel()
	disconnectErr := reporter.Disconnect(shutdownCtx)
	finishErr := fin.FinishProcessing(shutdownCtx)

	if finishErr != nil {
		return fail(errors.Join(finishErr, produceErr))
	}
	if err := errors.Join(produceErr, disconnectErr); err != nil {
		return fail(err)
	}
	logger.Info("run finished")
	return runID, nil
}

func (a *App) buildHandler(ctx context.Context, runID string, total int, logger *zap.Logger) (*storyteller.MultiHandler[dice.Event], error) {
	multi := storyteller.NewMultiHandler[dice.Event]()
	for _, name := range a.cfg.Handlers {
		switch name {
		case config.HandlerJSON:
			multi.Add(handlers.NewJSONLines[dice.Event](a.opts.Stdout))
		case config.HandlerTerminal:
			multi.Add(handlers.NewTerminal(a.opts.Stderr, total, dice.Step))
		case config.HandlerLog:
			multi.Add(handlers.NewLog(logger.Named("events"), dice.Fields))
		case config.HandlerMetrics:
			multi.Add(a.prometheus)
		case config.HandlerPublish:
			h, err := handlers.NewPublish[dice.Event](a.opts.Publisher, handlers.PublishConfig{
				Topic:       a.cfg.Publish.Topic,
				Timeout:     a.cfg.Publish.Timeout,
				BaseContext: context.WithoutCancel(ctx),
				Logger:      logger.Named("publish"),
			})
			if err != nil {
				return nil, err
			}
			multi.Add(h)
		case config.HandlerStore:
			h, err := handlers.NewStore(a.opts.EventLog, handlers.StoreConfig[dice.Event]{
				RunID:       runID,
				Kind:        dice.KindOf,
				Clock:       a.opts.Clock,
				BaseContext: context.WithoutCancel(ctx),
				Logger:      logger.Named("store"),
			})
			if err != nil {
				return nil, err
			}
			multi.Add(h)
		default:
			return nil, fmt.Errorf("unknown handler %q", name)
		}
	}
	return multi, nil
}
