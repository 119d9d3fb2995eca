package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/filing-validator/internal/types"
)

// StartRun inserts a run in the running state
func (db *DB) StartRun(ctx context.Context, runID uuid.UUID, blobs []string) error {
	blobsJSON, err := json.Marshal(nonNil(blobs))
	if err != nil {
		return fmt.Errorf("failed to marshal blobs: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO validation_runs (id, blobs, status) VALUES ($1, $2, $3)`,
		runID, blobsJSON, RunStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// RecordStep upserts the latest status of one step
func (db *DB) RecordStep(ctx context.Context, runID uuid.UUID, step, category, status string, duration time.Duration, errMsg string) error {
	var durationMs *int
	if duration > 0 {
		ms := int(duration.Milliseconds())
		durationMs = &ms
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO run_steps (run_id, step, category, status, duration_ms, error_message)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (run_id, step) DO UPDATE
		 SET status = EXCLUDED.status, duration_ms = EXCLUDED.duration_ms,
		     error_message = EXCLUDED.error_message, updated_at = NOW()`,
		runID, step, category, status, durationMs, nullable(errMsg),
	)
	if err != nil {
		return fmt.Errorf("failed to record step %s: %w", step, err)
	}
	return nil
}

// CompleteRun stores the final summary of a run
func (db *DB) CompleteRun(ctx context.Context, runID uuid.UUID, result *types.PipelineResult) error {
	errorsJSON, err := json.Marshal(nonNil(result.Errors))
	if err != nil {
		return fmt.Errorf("failed to marshal errors: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`UPDATE validation_runs
		 SET status = $1, output_file = $2, errors = $3, completed_at = NOW()
		 WHERE id = $4`,
		result.Status, nullable(result.OutputFile), errorsJSON, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID, or nil when it does not exist
func (db *DB) GetRun(ctx context.Context, runID uuid.UUID) (*Run, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT id, blobs, status, output_file, errors, created_at, completed_at
		 FROM validation_runs WHERE id = $1`,
		runID,
	)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves the most recent runs
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, blobs, status, output_file, errors, created_at, completed_at
		 FROM validation_runs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListRunSteps retrieves every recorded step of a run in recording order
func (db *DB) ListRunSteps(ctx context.Context, runID uuid.UUID) ([]RunStep, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, run_id, step, category, status, duration_ms, error_message, created_at, updated_at
		 FROM run_steps WHERE run_id = $1 ORDER BY created_at`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list run steps: %w", err)
	}
	defer rows.Close()

	var steps []RunStep
	for rows.Next() {
		var s RunStep
		if err := rows.Scan(&s.ID, &s.RunID, &s.Step, &s.Category, &s.Status,
			&s.DurationMs, &s.ErrorMessage, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run step: %w", err)
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	var blobsJSON, errorsJSON []byte
	if err := row.Scan(&run.ID, &blobsJSON, &run.Status, &run.OutputFile, &errorsJSON, &run.CreatedAt, &run.CompletedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(blobsJSON, &run.Blobs); err != nil {
		return nil, fmt.Errorf("invalid blobs column: %w", err)
	}
	if err := json.Unmarshal(errorsJSON, &run.Errors); err != nil {
		return nil, fmt.Errorf("invalid errors column: %w", err)
	}
	return &run, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
