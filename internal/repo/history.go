package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Conveyor/internal/domain"
)

// PgHistory — история запусков в PostgreSQL.
//
// Схема:
//
//	CREATE TABLE runs (
//	    id          bigserial PRIMARY KEY,
//	    pipeline_id text        NOT NULL,
//	    run_id      text        NOT NULL UNIQUE,
//	    status      text        NOT NULL,
//	    log         text        NOT NULL DEFAULT '',
//	    duration_ms bigint      NOT NULL DEFAULT 0,
//	    started_at  timestamptz NOT NULL,
//	    finished_at timestamptz
//	);
//
//	CREATE TABLE run_steps (
//	    id          bigserial PRIMARY KEY,
//	    run_id      bigint      NOT NULL REFERENCES runs(id),
//	    step_name   text        NOT NULL,
//	    module      text        NOT NULL,
//	    status      text        NOT NULL,
//	    result      jsonb,
//	    error       text        NOT NULL DEFAULT '',
//	    started_at  timestamptz NOT NULL,
//	    finished_at timestamptz
//	);
type PgHistory struct {
	pool *pgxpool.Pool
}

// NewPgHistory создаёт историю поверх пула PostgreSQL.
func NewPgHistory(pool *pgxpool.Pool) *PgHistory {
	return &PgHistory{pool: pool}
}

// StartRun создаёт запись о запуске в статусе running.
func (h *PgHistory) StartRun(ctx context.Context, pipelineID, runID string) (int64, error) {
	query := `
		INSERT INTO runs (pipeline_id, run_id, status, started_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	var id int64
	err := h.pool.QueryRow(ctx, query, pipelineID, runID, domain.RunStatusRunning, time.Now()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun финализирует запись о запуске.
func (h *PgHistory) FinishRun(ctx context.Context, recordID int64, status domain.RunStatus, logText string, duration time.Duration) error {
	query := `
		UPDATE runs
		SET status = $2, log = $3, duration_ms = $4, finished_at = $5
		WHERE id = $1
	`
	tag, err := h.pool.Exec(ctx, query, recordID, status, logText, duration.Milliseconds(), time.Now())
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish run %d: %w", recordID, ErrNotFound)
	}
	return nil
}

// StartStep создаёт запись о старте шага.
func (h *PgHistory) StartStep(ctx context.Context, recordID int64, stepName, moduleName string) (int64, error) {
	query := `
		INSERT INTO run_steps (run_id, step_name, module, status, started_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	var id int64
	err := h.pool.QueryRow(ctx, query, recordID, stepName, moduleName, domain.StepStatusRunning, time.Now()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert step: %w", err)
	}
	return id, nil
}

// FinishStep финализирует запись шага.
func (h *PgHistory) FinishStep(ctx context.Context, stepRecordID int64, status domain.StepStatus, result any, errText string) error {
	var resultJSON []byte
	if result != nil {
		var err error
		resultJSON, err = json.Marshal(result)
		if err != nil {
			// Несериализуемый результат не должен терять запись шага.
			resultJSON, _ = json.Marshal(fmt.Sprintf("%v", result))
		}
	}

	query := `
		UPDATE run_steps
		SET status = $2, result = $3, error = $4, finished_at = $5
		WHERE id = $1
	`
	tag, err := h.pool.Exec(ctx, query, stepRecordID, status, resultJSON, errText, time.Now())
	if err != nil {
		return fmt.Errorf("finish step: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish step %d: %w", stepRecordID, ErrNotFound)
	}
	return nil
}

// GetRun возвращает запись запуска по идентификатору запуска.
func (h *PgHistory) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	query := `
		SELECT id, pipeline_id, run_id, status, log, duration_ms, started_at, finished_at
		FROM runs
		WHERE run_id = $1
	`
	var run domain.Run
	err := h.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.PipelineID,
		&run.RunID,
		&run.Status,
		&run.Log,
		&run.DurationMs,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

// ListRuns возвращает последние запуски пайплайна.
func (h *PgHistory) ListRuns(ctx context.Context, pipelineID string, limit int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, pipeline_id, run_id, status, log, duration_ms, started_at, finished_at
		FROM runs
		WHERE pipeline_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := h.pool.Query(ctx, query, pipelineID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		var run domain.Run
		if err := rows.Scan(
			&run.ID,
			&run.PipelineID,
			&run.RunID,
			&run.Status,
			&run.Log,
			&run.DurationMs,
			&run.StartedAt,
			&run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListSteps возвращает записи шагов одного запуска.
func (h *PgHistory) ListSteps(ctx context.Context, recordID int64) ([]domain.StepRecord, error) {
	query := `
		SELECT id, run_id, step_name, module, status, COALESCE(result::text, ''), error, started_at, finished_at
		FROM run_steps
		WHERE run_id = $1
		ORDER BY id
	`
	rows, err := h.pool.Query(ctx, query, recordID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []domain.StepRecord
	for rows.Next() {
		var rec domain.StepRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.StepName,
			&rec.Module,
			&rec.Status,
			&rec.Result,
			&rec.Error,
			&rec.StartedAt,
			&rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, rec)
	}
	return steps, rows.Err()
}
