// Package postgres provides the Postgres-backed event log.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/storyteller/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const uniqueViolation = "23505"

// EventLogConfig controls the Postgres connection pool and table names.
// Runs are kept in "<Table>_runs".
type EventLogConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// EventLog implements store.EventRepository on Postgres.
type EventLog struct {
	pool   pool
	events string
	runs   string
}

// NewEventLog connects to Postgres using cfg.
func NewEventLog(ctx context.Context, cfg EventLogConfig) (*EventLog, error) {
	if cfg.DSN == "" {
		return nil, errors.New("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	log, err := NewEventLogWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return log, nil
}

// NewEventLogWithPool constructs an EventLog from an existing pool (primarily for testing).
func NewEventLogWithPool(p pool, table string) (*EventLog, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = "story_events"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &EventLog{
		pool:   p,
		events: pgx.Identifier{table}.Sanitize(),
		runs:   pgx.Identifier{table + "_runs"}.Sanitize(),
	}, nil
}

// Close releases the pool.
func (l *EventLog) Close() {
	l.pool.Close()
}

// EnsureSchema creates the event and run tables when missing.
func (l *EventLog) EnsureSchema(ctx context.Context) error {
	runs := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		run_id TEXT PRIMARY KEY,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		events BIGINT NOT NULL DEFAULT 0
	)`, l.runs)
	events := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		run_id TEXT NOT NULL,
		seq BIGINT NOT NULL,
		kind TEXT NOT NULL,
		payload JSONB NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (run_id, seq)
	)`, l.events)
	for _, stmt := range []string{runs, events} {
		if _, err := l.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// AppendEvent records the run start if needed, then inserts rec.
func (l *EventLog) AppendEvent(ctx context.Context, rec store.Record) error {
	startRun := fmt.Sprintf(`INSERT INTO %s (run_id, started_at)
		VALUES ($1, $2)
		ON CONFLICT (run_id) DO NOTHING`, l.runs)
	if _, err := l.pool.Exec(ctx, startRun, rec.RunID, rec.RecordedAt); err != nil {
		return fmt.Errorf("start run: %w", err)
	}

	insert := fmt.Sprintf(`INSERT INTO %s (run_id, seq, kind, payload, recorded_at)
		VALUES ($1, $2, $3, $4, $5)`, l.events)
	_, err := l.pool.Exec(ctx, insert, rec.RunID, rec.Seq, rec.Kind, rec.Payload, rec.RecordedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("insert event %s/%d: %w", rec.RunID, rec.Seq, store.ErrDuplicateEvent)
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// FinishRun stamps the run with its finish time and event count.
func (l *EventLog) FinishRun(ctx context.Context, runID string, finishedAt time.Time, events int64) error {
	query := fmt.Sprintf(`INSERT INTO %s (run_id, started_at, finished_at, events)
		VALUES ($1, $2, $2, $3)
		ON CONFLICT (run_id) DO UPDATE
		SET finished_at = EXCLUDED.finished_at, events = EXCLUDED.events`, l.runs)
	if _, err := l.pool.Exec(ctx, query, runID, finishedAt, events); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// GetRun loads a single run.
func (l *EventLog) GetRun(ctx context.Context, runID string) (store.Run, error) {
	query := fmt.Sprintf(`SELECT run_id, started_at, finished_at, events
		FROM %s
		WHERE run_id = $1`, l.runs)
	var run store.Run
	err := l.pool.QueryRow(ctx, query, runID).Scan(&run.RunID, &run.StartedAt, &run.FinishedAt, &run.Events)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns a page of runs, most recently started first.
func (l *EventLog) ListRuns(ctx context.Context, limit, offset int) ([]store.Run, error) {
	query := fmt.Sprintf(`SELECT run_id, started_at, finished_at, events
		FROM %s
		ORDER BY started_at DESC, run_id
		LIMIT $1 OFFSET $2`, l.runs)
	rows, err := l.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		var run store.Run
		if err := rows.Scan(&run.RunID, &run.StartedAt, &run.FinishedAt, &run.Events); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

// ListEvents returns a page of a run's records ordered by sequence. An
// unknown run yields store.ErrNotFound.
func (l *EventLog) ListEvents(ctx context.Context, runID string, limit, offset int) ([]store.Record, error) {
	if _, err := l.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT run_id, seq, kind, payload, recorded_at
		FROM %s
		WHERE run_id = $1
		ORDER BY seq
		LIMIT $2 OFFSET $3`, l.events)
	rows, err := l.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var records []store.Record
	for rows.Next() {
		var rec store.Record
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.Kind, &rec.Payload, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return records, nil
}
