package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docscreen-io/docscreen/constants"
	"github.com/docscreen-io/docscreen/internal/common"
	"github.com/docscreen-io/docscreen/internal/entity"
)

// Config holds Postgres pool settings.
type Config struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// PostgresStore is the pgx-backed JobStore.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// OpenPostgres creates a pgx pool, ensures the schema, and returns the store.
func OpenPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connecting to database")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database config", "error", err)
		return nil, err
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "docscreen"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = cfg.StatementTimeout.String()
	}

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	s := &PostgresStore{pool: pool, log: logger}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("successfully connected to database")
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			job_id        UUID PRIMARY KEY,
			workflow_name TEXT NOT NULL,
			input_source  TEXT NOT NULL,
			status        TEXT NOT NULL,
			start_time    TIMESTAMPTZ NOT NULL,
			end_time      TIMESTAMPTZ,
			error_message TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id       UUID PRIMARY KEY,
			job_id        UUID NOT NULL REFERENCES jobs(job_id),
			task_type     TEXT NOT NULL,
			task_order    INT  NOT NULL,
			status        TEXT NOT NULL,
			input_ref     TEXT,
			output        JSONB,
			error_message TEXT,
			started_at    TIMESTAMPTZ,
			finished_at   TIMESTAMPTZ,
			UNIQUE (job_id, task_type, task_order)
		)`,
		`CREATE INDEX IF NOT EXISTS tasks_job_order_idx ON tasks (job_id, task_order)`,
		`CREATE INDEX IF NOT EXISTS tasks_status_started_idx ON tasks (status, started_at)`,
	}
	for _, q := range ddl {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			s.log.Error("schema setup failed", "error", err)
			return err
		}
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *entity.Job, tasks []*entity.Task) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO jobs (job_id, workflow_name, input_source, status, start_time) VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.WorkflowName, job.InputSource, string(job.Status), job.StartTime)
	if err != nil {
		s.log.Error("job insert failed", "job_id", job.ID, "error", err)
		return err
	}
	for _, t := range tasks {
		_, err = tx.Exec(ctx,
			`INSERT INTO tasks (task_id, job_id, task_type, task_order, status, input_ref) VALUES ($1, $2, $3, $4, $5, $6)`,
			t.ID, t.JobID, string(t.TaskType), t.TaskOrder, string(t.Status), t.InputRef)
		if err != nil {
			s.log.Error("task insert failed", "task_id", t.ID, "error", err)
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID uuid.UUID) (*entity.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT job_id, workflow_name, input_source, status, start_time, end_time, error_message FROM jobs WHERE job_id = $1`, jobID)
	var j entity.Job
	var status string
	err := row.Scan(&j.ID, &j.WorkflowName, &j.InputSource, &status, &j.StartTime, &j.EndTime, &j.ErrorMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.WrapError(common.ErrNotFound, "job "+jobID.String())
	}
	if err != nil {
		return nil, err
	}
	j.Status = constants.JobStatus(status)
	return &j, nil
}

func (s *PostgresStore) SetJobStatus(ctx context.Context, jobID uuid.UUID, status constants.JobStatus, errMsg *string, endTime *time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, error_message = COALESCE($3, error_message), end_time = COALESCE($4, end_time) WHERE job_id = $1`,
		jobID, string(status), errMsg, endTime)
	return err
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID uuid.UUID) (*entity.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT task_id, job_id, task_type, task_order, status, input_ref, output, error_message, started_at, finished_at FROM tasks WHERE task_id = $1`, taskID)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.WrapError(common.ErrNotFound, "task "+taskID.String())
	}
	return t, err
}

func (s *PostgresStore) ListTasks(ctx context.Context, jobID uuid.UUID) ([]*entity.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT task_id, job_id, task_type, task_order, status, input_ref, output, error_message, started_at, finished_at FROM tasks WHERE job_id = $1 ORDER BY task_order`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *PostgresStore) MarkTaskRunning(ctx context.Context, taskID uuid.UUID, startedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $2, started_at = $3 WHERE task_id = $1`,
		taskID, string(constants.TaskStatusRunning), startedAt)
	return err
}

func (s *PostgresStore) CompleteTask(ctx context.Context, taskID uuid.UUID, output json.RawMessage, finishedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $2, output = $3, finished_at = $4 WHERE task_id = $1`,
		taskID, string(constants.TaskStatusCompleted), output, finishedAt)
	return err
}

func (s *PostgresStore) FailTask(ctx context.Context, taskID uuid.UUID, errMsg string, finishedAt time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $2, error_message = $3, finished_at = $4 WHERE task_id = $1`,
		taskID, string(constants.TaskStatusFailed), errMsg, finishedAt)
	return err
}

func (s *PostgresStore) ListRunningBefore(ctx context.Context, cutoff time.Time) ([]*entity.Task, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT task_id, job_id, task_type, task_order, status, input_ref, output, error_message, started_at, finished_at
		 FROM tasks WHERE status = $1 AND started_at < $2`,
		string(constants.TaskStatusRunning), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() {
	s.log.Info("closing database connections")
	s.pool.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*entity.Task, error) {
	var t entity.Task
	var taskType, status string
	var inputRef *string
	if err := row.Scan(&t.ID, &t.JobID, &taskType, &t.TaskOrder, &status, &inputRef, &t.Output, &t.ErrorMessage, &t.StartedAt, &t.FinishedAt); err != nil {
		return nil, err
	}
	t.TaskType = constants.TaskType(taskType)
	t.Status = constants.TaskStatus(status)
	if inputRef != nil {
		t.InputRef = *inputRef
	}
	return &t, nil
}

func collectTasks(rows pgx.Rows) ([]*entity.Task, error) {
	var out []*entity.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
