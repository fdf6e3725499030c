// Package postgres implements the PostgreSQL persistence layer for the SGN
// Grade Hub.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sgn-hub/sgn-grade-hub/internal/application/run"
	"github.com/sgn-hub/sgn-grade-hub/internal/domain/grading"
	"github.com/sgn-hub/sgn-grade-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN HISTORY REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// RunRepository implements run.HistoryRepository for PostgreSQL.
type RunRepository struct {
	conn *Connection
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(conn *Connection) *RunRepository {
	return &RunRepository{conn: conn}
}

var _ run.HistoryRepository = (*RunRepository)(nil)

// SaveRun inserts or updates a run record. The coordinator saves once per
// run at the terminal event, but upsert keeps a retried save harmless.
func (r *RunRepository) SaveRun(ctx context.Context, rec run.Record) error {
	query := `
		INSERT INTO runs (
			id, kind, classroom, period, status, tally,
			succeeded, failed, skipped, remedial, classification,
			started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			tally = EXCLUDED.tally,
			succeeded = EXCLUDED.succeeded,
			failed = EXCLUDED.failed,
			skipped = EXCLUDED.skipped,
			remedial = EXCLUDED.remedial,
			classification = EXCLUDED.classification,
			finished_at = EXCLUDED.finished_at
	`

	_, err := r.conn.Exec(ctx, query,
		rec.ID,
		string(rec.Kind),
		rec.Classroom,
		string(rec.Period),
		string(rec.Status),
		rec.Tally,
		rec.Succeeded,
		rec.Failed,
		rec.Skipped,
		rec.Remedial,
		rec.Classification,
		rec.StartedAt,
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", rec.ID, err)
	}
	return nil
}

// GetRun returns one run record by ID.
func (r *RunRepository) GetRun(ctx context.Context, id uuid.UUID) (run.Record, error) {
	query := `
		SELECT id, kind, classroom, period, status, tally,
			   succeeded, failed, skipped, remedial, classification,
			   started_at, finished_at
		FROM runs
		WHERE id = $1
	`

	rec, err := r.scanRun(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return run.Record{}, shared.NewDomainError("postgres", "GetRun",
				shared.ErrNotFound, fmt.Sprintf("run %s not found", id))
		}
		return run.Record{}, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return rec, nil
}

// ListRuns returns the most recent runs of a classroom, newest first. An
// empty classroom filter lists across classrooms.
func (r *RunRepository) ListRuns(ctx context.Context, classroom string, limit int) ([]run.Record, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, kind, classroom, period, status, tally,
			   succeeded, failed, skipped, remedial, classification,
			   started_at, finished_at
		FROM runs
		WHERE ($1 = '' OR classroom = $1)
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, classroom, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var records []run.Record
	for rows.Next() {
		rec, err := r.scanRun(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *RunRepository) scanRun(row pgx.Row) (run.Record, error) {
	var (
		rec        run.Record
		kind       string
		period     string
		status     string
		finishedAt *time.Time
	)

	err := row.Scan(
		&rec.ID,
		&kind,
		&rec.Classroom,
		&period,
		&status,
		&rec.Tally,
		&rec.Succeeded,
		&rec.Failed,
		&rec.Skipped,
		&rec.Remedial,
		&rec.Classification,
		&rec.StartedAt,
		&finishedAt,
	)
	if err != nil {
		return run.Record{}, err
	}

	rec.Kind = run.Kind(kind)
	rec.Period = grading.ReferencePeriod(period)
	rec.Status = run.RunStatus(status)
	rec.FinishedAt = finishedAt
	return rec, nil
}
