package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/storyteller/internal/config"
	memorypublisher "github.com/JakeFAU/storyteller/internal/publisher/memory"
	memorystorage "github.com/JakeFAU/storyteller/internal/storage/memory"
	"github.com/JakeFAU/storyteller/pkg/storyteller"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time     { return c.now }
func (fixedClock) Sleep(time.Duration) {}

type sequentialIDs struct {
	n atomic.Int64
}

func (s *sequentialIDs) NewID() (string, error) {
	return fmt.Sprintf("run-%d", s.n.Add(1)), nil
}

func testConfig(mode string, handlers ...string) config.Config {
	return config.Config{
		Game: config.GameConfig{
			Rounds:       3,
			Players:      2,
			WinThreshold: 3,
			Seed:         42,
		},
		Reporter: config.ReporterConfig{
			Mode:            mode,
			AckPolicy:       "strict",
			ShutdownTimeout: 5 * time.Second,
		},
		Handlers: handlers,
		Publish: config.PublishConfig{
			ProjectID: "demo",
			Topic:     "story-events",
			Timeout:   time.Second,
		},
		Store: config.StoreConfig{
			DSN:   "postgres://unused",
			Table: "story_events",
		},
	}
}

type harness struct {
	app       *App
	stdout    *bytes.Buffer
	stderr    *bytes.Buffer
	publisher *memorypublisher.Publisher
	eventLog  *memorystorage.EventLog
	registry  *prometheus.Registry
}

func newHarness(t *testing.T, cfg config.Config) *harness {
	t.Helper()
	require.NoError(t, cfg.Validate())

	h := &harness{
		stdout:    &bytes.Buffer{},
		stderr:    &bytes.Buffer{},
		publisher: memorypublisher.New(),
		eventLog:  memorystorage.NewEventLog(),
		registry:  prometheus.NewRegistry(),
	}
	a, err := New(context.Background(), cfg, zaptest.NewLogger(t), Options{
		Stdout:    h.stdout,
		Stderr:    h.stderr,
		Registry:  h.registry,
		Clock:     fixedClock{now: time.Unix(1700000000, 0).UTC()},
		IDs:       &sequentialIDs{},
		Publisher: h.publisher,
		EventLog:  h.eventLog,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })
	h.app = a
	return h
}

func (h *harness) lines() []string {
	return strings.Split(strings.TrimSpace(h.stdout.String()), "\n")
}

// TestPlayFansOutToEveryHandler runs the dice game through all in-process handlers.
func TestPlayFansOutToEveryHandler(t *testing.T) {
	t.Parallel()

	cfg := testConfig("finalize",
		config.HandlerJSON,
		config.HandlerTerminal,
		config.HandlerLog,
		config.HandlerMetrics,
		config.HandlerPublish,
		config.HandlerStore,
	)
	h := newHarness(t, cfg)

	res, err := h.app.Play(context.Background())
	require.NoError(t, err)
	require.Equal(t, "run-1", res.RunID)
	require.Equal(t, int64(6), res.Summary.Throws)
	require.Equal(t, res.Summary.Throws, res.Summary.Wins+res.Summary.Losses)

	// each player: one join message plus throw, outcome and increment per round
	const events = 2 * (1 + 3*3)

	lines := h.lines()
	require.Len(t, lines, events+1)
	require.Contains(t, lines[0], `"run_id":"run-1"`)
	require.JSONEq(t, `{"event":"program-finished","success":true,"events":20}`, lines[events])

	require.Len(t, h.publisher.Messages(), events+1)

	run, err := h.eventLog.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	require.True(t, run.Finished())
	require.Equal(t, int64(events), run.Events)
	records, err := h.eventLog.ListEvents(context.Background(), "run-1", 100, 0)
	require.NoError(t, err)
	require.Len(t, records, events)

	require.Contains(t, h.stderr.String(), "6/6")

	expected := `
# HELP storyteller_events_handled_total Events passed to a handler by a listener.
# TYPE storyteller_events_handled_total counter
storyteller_events_handled_total 20
# HELP storyteller_streams_finished_total Event streams that reached Finish.
# TYPE storyteller_streams_finished_total counter
storyteller_streams_finished_total 1
`
	require.NoError(t, testutil.GatherAndCompare(h.registry, strings.NewReader(expected),
		"storyteller_events_handled_total", "storyteller_streams_finished_total"))
}

// TestStatusRendezvous drives the status script with the acknowledging handshake.
func TestStatusRendezvous(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig("rendezvous", config.HandlerJSON))

	res, err := h.app.Status(context.Background())
	require.NoError(t, err)
	require.Equal(t, "run-1", res.RunID)

	lines := h.lines()
	require.Len(t, lines, 18)
	require.Contains(t, lines[0], `[status]\tOne`)
	require.JSONEq(t, `{"event":"program-finished","success":true,"events":17}`, lines[17])
}

// TestRunsGetDistinctIDs checks that consecutive runs share the app but not state.
func TestRunsGetDistinctIDs(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig("finalize", config.HandlerJSON, config.HandlerMetrics))

	first, err := h.app.Status(context.Background())
	require.NoError(t, err)
	second, err := h.app.Status(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, first.RunID, second.RunID)

	lines := h.lines()
	require.Len(t, lines, 36)
	require.JSONEq(t, `{"event":"program-finished","success":true,"events":17}`, lines[35])
}

// TestPlayHandlerFault surfaces a failing publisher as a join error.
func TestPlayHandlerFault(t *testing.T) {
	t.Parallel()

	for _, mode := range []string{"finalize", "rendezvous"} {
		t.Run(mode, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, testConfig(mode, config.HandlerPublish, config.HandlerStore))
			unavailable := errors.New("unavailable")
			h.publisher.FailWith(unavailable)

			_, err := h.app.Play(context.Background())
			require.Error(t, err)

			var jerr *storyteller.JoinError
			require.ErrorAs(t, err, &jerr)
			require.ErrorIs(t, err, unavailable)
			require.Equal(t, int64(1), jerr.Handled)

			run, err := h.eventLog.GetRun(context.Background(), "run-1")
			if err == nil {
				require.False(t, run.Finished())
			}
		})
	}
}

// TestRunLogsHandlerSetupFailure reports a handler that cannot be built like any other run failure.
func TestRunLogsHandlerSetupFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, testConfig("finalize", config.HandlerStore))
	core, logs := observer.New(zap.InfoLevel)
	h.app.logger = zap.New(core)
	h.app.opts.EventLog = nil

	res, err := h.app.Play(context.Background())
	require.ErrorContains(t, err, "event log is nil")
	require.Equal(t, "run-1", res.RunID)

	failed := logs.FilterMessage("run failed")
	require.Equal(t, 1, failed.Len())
	require.Equal(t, "run-1", failed.All()[0].ContextMap()["run_id"])
	require.Zero(t, logs.FilterMessage("run started").Len())
}

// TestNewRejectsDuplicateRegistration keeps listener collectors unique per registry.
func TestNewRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	cfg := testConfig("finalize", config.HandlerJSON)
	_, err := New(context.Background(), cfg, nil, Options{Registry: reg, Stdout: &bytes.Buffer{}})
	require.NoError(t, err)
	_, err = New(context.Background(), cfg, nil, Options{Registry: reg, Stdout: &bytes.Buffer{}})
	require.Error(t, err)
}
