// Package memory provides in-memory storage for development and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/storyteller/internal/store"
)

type run struct {
	info    store.Run
	records []store.Record
}

// EventLog implements store.EventRepository in memory.
type EventLog struct {
	mu   sync.RWMutex
	runs map[string]*run
}

// NewEventLog constructs an empty EventLog.
func NewEventLog() *EventLog {
	return &EventLog{runs: make(map[string]*run)}
}

// AppendEvent stores rec. Sequence numbers must increase within a run.
func (l *EventLog) AppendEvent(_ context.Context, rec store.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.runLocked(rec.RunID, rec.RecordedAt)
	if n := len(r.records); n > 0 && rec.Seq <= r.records[n-1].Seq {
		return fmt.Errorf("append %s/%d: %w", rec.RunID, rec.Seq, store.ErrDuplicateEvent)
	}
	rec.Payload = append([]byte(nil), rec.Payload...)
	r.records = append(r.records, rec)
	return nil
}

// FinishRun closes the run, creating it if nothing was appended.
func (l *EventLog) FinishRun(_ context.Context, runID string, finishedAt time.Time, events int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := l.runLocked(runID, finishedAt)
	at := finishedAt
	r.info.FinishedAt = &at
	r.info.Events = events
	return nil
}

// GetRun returns the run summary.
func (l *EventLog) GetRun(_ context.Context, runID string) (store.Run, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return r.info, nil
}

// ListRuns pages through runs, newest first.
func (l *EventLog) ListRuns(_ context.Context, limit, offset int) ([]store.Run, error) {
	l.mu.RLock()
	runs := make([]store.Run, 0, len(l.runs))
	for _, r := range l.runs {
		runs = append(runs, r.info)
	}
	l.mu.RUnlock()

	slices.SortFunc(runs, func(a, b store.Run) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.RunID, b.RunID)
	})
	return page(runs, limit, offset), nil
}

// ListEvents pages through a run's records.
func (l *EventLog) ListEvents(_ context.Context, runID string, limit, offset int) ([]store.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.runs[runID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return page(r.records, limit, offset), nil
}

// page copies items[offset:offset+limit]; a non-positive limit means no limit.
func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]T, end-offset)
	copy(out, items[offset:end])
	return out
}

func (l *EventLog) runLocked(runID string, at time.Time) *run {
	r, ok := l.runs[runID]
	if !ok {
		r = &run{info: store.Run{RunID: runID, StartedAt: at}}
		l.runs[runID] = r
	}
	return r
}
