package store

import (
	"context"
	"errors"
	"time"

	"github.com/JakeFAU/storyteller/pkg/storyteller/handlers"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("event run not found")

// ErrDuplicateEvent signals that a record with the same run and sequence
// number was already stored.
var ErrDuplicateEvent = errors.New("duplicate event record")

// Record is one persisted event, as written by the store handler.
type Record = handlers.Record

// Run summarizes one event stream.
type Run struct {
	// RunID identifies the stream.
	RunID string
	// StartedAt is when the first record (or the finish marker) arrived.
	StartedAt time.Time
	// FinishedAt is nil until the stream finished.
	FinishedAt *time.Time
	// Events is the final event count, set when the run finishes.
	Events int64
}

// Finished reports whether the run has been closed.
func (r Run) Finished() bool {
	return r.FinishedAt != nil
}

// EventRepository persists event runs and reads them back.
type EventRepository interface {
	handlers.EventLog

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID string) (Run, error)
	// ListRuns returns runs, most recently started first.
	ListRuns(ctx context.Context, limit, offset int) ([]Run, error)
	// ListEvents returns a run's records ordered by sequence number.
	ListEvents(ctx context.Context, runID string, limit, offset int) ([]Record, error)
}
