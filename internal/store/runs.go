package store

import (
	"context"
	"fmt"
	"time"
)

// Run statuses.
const (
	RunSucceeded = "succeeded"
	RunPartial   = "partial"
	RunFailed    = "failed"
)

// Run is the history record of one pipeline execution.
type Run struct {
	ID            string    `db:"id" json:"id"`
	Day           string    `db:"day" json:"date"`
	Status        string    `db:"status" json:"status"`
	StartedAt     time.Time `db:"started_at" json:"started_at"`
	DurationMS    int64     `db:"duration_ms" json:"duration_ms"`
	Candidates    int       `db:"candidates" json:"candidates"`
	Channels      int       `db:"channels" json:"channels"`
	Qualified     int       `db:"qualified" json:"qualified"`
	WriteFailures int       `db:"write_failures" json:"write_failures"`
	Error         string    `db:"error" json:"error,omitempty"`
}

func (s *SQLStore) RecordRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO pipeline_runs (id, day, status, started_at, duration_ms, candidates, channels, qualified, write_failures, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			duration_ms = excluded.duration_ms,
			candidates = excluded.candidates,
			channels = excluded.channels,
			qualified = excluded.qualified,
			write_failures = excluded.write_failures,
			error = excluded.error
	`), run.ID, run.Day, run.Status, run.StartedAt.UTC(), run.DurationMS, run.Candidates,
		run.Channels, run.Qualified, run.WriteFailures, run.Error)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *SQLStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	query, args, err := s.sb.Select("*").
		From("pipeline_runs").
		OrderBy("started_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build runs query: %w", err)
	}
	runs := []Run{}
	if err := s.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
