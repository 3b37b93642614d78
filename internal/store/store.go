package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store persists agent run history in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.RunRecorder = (*Store)(nil)

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

const (
	sqlCreateRuns = `
        CREATE TABLE IF NOT EXISTS runs (
            id          TEXT PRIMARY KEY,
            instruction TEXT NOT NULL,
            model       TEXT NOT NULL DEFAULT '',
            state       TEXT NOT NULL,
            status      TEXT NOT NULL DEFAULT '',
            steps       INTEGER NOT NULL DEFAULT 0,
            error       TEXT NOT NULL DEFAULT '',
            started_at  TIMESTAMPTZ NOT NULL,
            finished_at TIMESTAMPTZ
        );
    `
	sqlCreateSteps = `
        CREATE TABLE IF NOT EXISTS run_steps (
            run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
            step          INTEGER NOT NULL,
            answer        TEXT NOT NULL,
            reasoning_len INTEGER NOT NULL,
            action        TEXT NOT NULL DEFAULT '',
            arguments     JSONB NOT NULL DEFAULT '{}',
            outcome       TEXT NOT NULL,
            error         TEXT NOT NULL DEFAULT '',
            duration_ms   BIGINT NOT NULL,
            recorded_at   TIMESTAMPTZ NOT NULL,
            PRIMARY KEY (run_id, step)
        );
    `
	sqlUpsertRun = `
        INSERT INTO runs (id, instruction, model, state, status, steps, error, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO UPDATE SET
            state = EXCLUDED.state,
            status = EXCLUDED.status,
            steps = EXCLUDED.steps,
            error = EXCLUDED.error,
            finished_at = EXCLUDED.finished_at;
    `
	sqlInsertStep = `
        INSERT INTO run_steps (run_id, step, answer, reasoning_len, action, arguments, outcome, error, duration_ms, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        ON CONFLICT (run_id, step) DO NOTHING;
    `
	sqlListRuns = `
        SELECT id, instruction, model, state, status, steps, error, started_at, finished_at
        FROM runs
        ORDER BY started_at DESC
        LIMIT $1;
    `
	sqlListSteps = `
        SELECT step, answer, reasoning_len, action, arguments, outcome, error, duration_ms, recorded_at
        FROM run_steps
        WHERE run_id = $1
        ORDER BY step ASC;
    `
)

// EnsureSchema creates the history tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	for _, stmt := range []string{sqlCreateRuns, sqlCreateSteps} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecordRun inserts the run or updates its final state.
func (s *Store) RecordRun(ctx context.Context, run schemas.RunRecord) error {
	var finishedAt *time.Time
	if !run.FinishedAt.IsZero() {
		t := run.FinishedAt.UTC()
		finishedAt = &t
	}

	_, err := s.pool.Exec(ctx, sqlUpsertRun,
		run.ID, run.Instruction, run.Model,
		string(run.State), run.Status, run.Steps, run.Error,
		run.StartedAt.UTC(), finishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// RecordStep inserts one step. Replaying a step that is already stored is a no-op.
func (s *Store) RecordStep(ctx context.Context, step schemas.StepRecord) error {
	arguments := []byte("{}")
	if len(step.Arguments) > 0 {
		encoded, err := json.Marshal(step.Arguments)
		if err != nil {
			return fmt.Errorf("failed to encode arguments for step %d: %w", step.Step, err)
		}
		arguments = encoded
	}

	_, err := s.pool.Exec(ctx, sqlInsertStep,
		step.RunID, step.Step, step.Answer, step.ReasoningLen,
		step.Action, arguments, string(step.Outcome), step.Error,
		step.Duration.Milliseconds(), step.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record step %d of run %s: %w", step.Step, step.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]schemas.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, sqlListRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []schemas.RunRecord
	for rows.Next() {
		var (
			r          schemas.RunRecord
			state      string
			finishedAt *time.Time
		)
		if err := rows.Scan(&r.ID, &r.Instruction, &r.Model, &state, &r.Status, &r.Steps, &r.Error, &r.StartedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		r.State = schemas.RunState(state)
		if finishedAt != nil {
			r.FinishedAt = *finishedAt
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

// ListSteps returns the steps of one run in order.
func (s *Store) ListSteps(ctx context.Context, runID string) ([]schemas.StepRecord, error) {
	rows, err := s.pool.Query(ctx, sqlListSteps, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var steps []schemas.StepRecord
	for rows.Next() {
		var (
			st         schemas.StepRecord
			arguments  []byte
			outcome    string
			durationMS int64
		)
		if err := rows.Scan(&st.Step, &st.Answer, &st.ReasoningLen, &st.Action, &arguments, &outcome, &st.Error, &durationMS, &st.At); err != nil {
			return nil, fmt.Errorf("failed to scan step row: %w", err)
		}
		if len(arguments) > 0 && string(arguments) != "{}" {
			if err := json.Unmarshal(arguments, &st.Arguments); err != nil {
				return nil, fmt.Errorf("failed to decode arguments of step %d: %w", st.Step, err)
			}
		}
		st.RunID = runID
		st.Outcome = schemas.StepOutcome(outcome)
		st.Duration = time.Duration(durationMS) * time.Millisecond
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return steps, nil
}
