package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Record is one persisted event.
type Record struct {
	RunID      string
	Seq        int64
	Kind       string
	Payload    []byte
	RecordedAt time.Time
}

// EventLog persists event records for a run.
type EventLog interface {
	// AppendEvent stores one record. Seq is unique per run.
	AppendEvent(ctx context.Context, rec Record) error
	// FinishRun marks the run complete with its final event count.
	FinishRun(ctx context.Context, runID string, finishedAt time.Time, events int64) error
}

// Clock supplies timestamps for records.
type Clock interface {
	Now() time.Time
}

// StoreConfig controls the store handler.
//   - RunID: identifier shared by every record of this stream (required).
//   - Kind: maps an event to its record kind (defaults to "event").
//   - Clock: timestamp source (defaults to time.Now in UTC).
//   - Timeout: per-write timeout (default 10s).
//   - BaseContext: parent context for writes (defaults to context.Background()).
//   - Logger: optional structured logger.
type StoreConfig[E any] struct {
	RunID       string
	Kind        func(E) string
	Clock       Clock
	Timeout     time.Duration
	BaseContext context.Context
	Logger      *zap.Logger
}

// Store appends every event to an EventLog and closes the run on Finish.
type Store[E any] struct {
	log    EventLog
	cfg    StoreConfig[E]
	logger *zap.Logger
	seq    int64
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// NewStore builds a Store handler.
func NewStore[E any](log EventLog, cfg StoreConfig[E]) (*Store[E], error) {
	if log == nil {
		return nil, errors.New("store handler: event log is nil")
	}
	if cfg.RunID == "" {
		return nil, errors.New("store handler: run id is required")
	}
	if cfg.Kind == nil {
		cfg.Kind = func(E) string { return "event" }
	}
	if cfg.Clock == nil {
		cfg.Clock = utcClock{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultBridgeTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store[E]{log: log, cfg: cfg, logger: logger}, nil
}

// Handle encodes evt as JSON and appends it.
func (h *Store[E]) Handle(evt E) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	rec := Record{
		RunID:      h.cfg.RunID,
		Seq:        h.seq + 1,
		Kind:       h.cfg.Kind(evt),
		Payload:    payload,
		RecordedAt: h.cfg.Clock.Now(),
	}
	ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.Timeout)
	defer cancel()
	if err := h.log.AppendEvent(ctx, rec); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	h.seq = rec.Seq
	return nil
}

// Finish marks the run complete.
func (h *Store[E]) Finish() error {
	ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.Timeout)
	defer cancel()
	if err := h.log.FinishRun(ctx, h.cfg.RunID, h.cfg.Clock.Now(), h.seq); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	h.logger.Debug("event run stored", zap.String("run_id", h.cfg.RunID), zap.Int64("events", h.seq))
	return nil
}
