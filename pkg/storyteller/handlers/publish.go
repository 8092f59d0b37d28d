package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Publisher sends payloads to a message topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// PublishConfig controls the publish handler.
//   - Topic: destination topic (required).
//   - Timeout: per-publish timeout (default 10s).
//   - BaseContext: parent context for publish calls (defaults to context.Background()).
//   - Logger: optional structured logger.
type PublishConfig struct {
	Topic       string
	Timeout     time.Duration
	BaseContext context.Context
	Logger      *zap.Logger
}

const defaultBridgeTimeout = 10 * time.Second

// Publish forwards every event to a Publisher, then publishes a
// program-finished trailer on Finish. A publish failure is a handler fault.
type Publish[E any] struct {
	pub       Publisher
	cfg       PublishConfig
	logger    *zap.Logger
	published atomic.Int64
}

// NewPublish builds a Publish handler.
func NewPublish[E any](pub Publisher, cfg PublishConfig) (*Publish[E], error) {
	if pub == nil {
		return nil, errors.New("publish handler: publisher is nil")
	}
	if cfg.Topic == "" {
		return nil, errors.New("publish handler: topic is required")
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
	return &Publish[E]{pub: pub, cfg: cfg, logger: logger}, nil
}

// Handle publishes evt.
func (h *Publish[E]) Handle(evt E) error {
	id, err := h.publish(evt)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	n := h.published.Add(1)
	h.logger.Debug("event published", zap.String("topic", h.cfg.Topic), zap.String("message_id", id), zap.Int64("seq", n))
	return nil
}

// Finish publishes the trailer.
func (h *Publish[E]) Finish() error {
	if _, err := h.publish(finished(h.published.Load())); err != nil {
		return fmt.Errorf("publish trailer: %w", err)
	}
	return nil
}

// Published reports how many events were published.
func (h *Publish[E]) Published() int64 {
	return h.published.Load()
}

func (h *Publish[E]) publish(payload any) (string, error) {
	ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.Timeout)
	defer cancel()
	return h.pub.Publish(ctx, h.cfg.Topic, payload)
}
