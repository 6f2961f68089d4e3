package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/docscreen-io/docscreen/constants"
	"github.com/docscreen-io/docscreen/internal/common"
	"github.com/docscreen-io/docscreen/internal/entity"
)

// SQLiteStore is the embedded JobStore for single-node deployments without
// a Postgres instance. UUIDs and timestamps are stored as text (RFC 3339).
type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenSQLite opens (or creates) the database file and ensures the schema.
func OpenSQLite(ctx context.Context, dsn string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		logger.Error("failed to open sqlite database", "error", err)
		return nil, err
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent task updates.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, log: logger}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("sqlite store ready", "dsn", dsn)
	return s, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			job_id        TEXT PRIMARY KEY,
			workflow_name TEXT NOT NULL,
			input_source  TEXT NOT NULL,
			status        TEXT NOT NULL,
			start_time    TEXT NOT NULL,
			end_time      TEXT,
			error_message TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id       TEXT PRIMARY KEY,
			job_id        TEXT NOT NULL REFERENCES jobs(job_id),
			task_type     TEXT NOT NULL,
			task_order    INTEGER NOT NULL,
			status        TEXT NOT NULL,
			input_ref     TEXT,
			output        TEXT,
			error_message TEXT,
			started_at    TEXT,
			finished_at   TEXT,
			UNIQUE (job_id, task_type, task_order)
		)`,
		`CREATE INDEX IF NOT EXISTS tasks_job_order_idx ON tasks (job_id, task_order)`,
	}
	for _, q := range ddl {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			s.log.Error("sqlite schema setup failed", "error", err)
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *entity.Job, tasks []*entity.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs (job_id, workflow_name, input_source, status, start_time) VALUES (?, ?, ?, ?, ?)`,
		job.ID.String(), job.WorkflowName, job.InputSource, string(job.Status), fmtTime(job.StartTime))
	if err != nil {
		s.log.Error("job insert failed", "job_id", job.ID, "error", err)
		return err
	}
	for _, t := range tasks {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO tasks (task_id, job_id, task_type, task_order, status, input_ref) VALUES (?, ?, ?, ?, ?, ?)`,
			t.ID.String(), t.JobID.String(), string(t.TaskType), t.TaskOrder, string(t.Status), t.InputRef)
		if err != nil {
			s.log.Error("task insert failed", "task_id", t.ID, "error", err)
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID uuid.UUID) (*entity.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT job_id, workflow_name, input_source, status, start_time, end_time, error_message FROM jobs WHERE job_id = ?`,
		jobID.String())
	var j entity.Job
	var id, status, start string
	var end *string
	err := row.Scan(&id, &j.WorkflowName, &j.InputSource, &status, &start, &end, &j.ErrorMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.WrapError(common.ErrNotFound, "job "+jobID.String())
	}
	if err != nil {
		return nil, err
	}
	if j.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	j.Status = constants.JobStatus(status)
	if j.StartTime, err = parseTime(start); err != nil {
		return nil, err
	}
	if j.EndTime, err = parseTimePtr(end); err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *SQLiteStore) SetJobStatus(ctx context.Context, jobID uuid.UUID, status constants.JobStatus, errMsg *string, endTime *time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error_message = COALESCE(?, error_message), end_time = COALESCE(?, end_time) WHERE job_id = ?`,
		string(status), errMsg, fmtTimePtr(endTime), jobID.String())
	return err
}

func (s *SQLiteStore) GetTask(ctx context.Context, taskID uuid.UUID) (*entity.Task, error) {
	row := s.db.QueryRowContext(ctx, taskSelect+` WHERE task_id = ?`, taskID.String())
	t, err := s.scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.WrapError(common.ErrNotFound, "task "+taskID.String())
	}
	return t, err
}

func (s *SQLiteStore) ListTasks(ctx context.Context, jobID uuid.UUID) ([]*entity.Task, error) {
	rows, err := s.db.QueryContext(ctx, taskSelect+` WHERE job_id = ? ORDER BY task_order`, jobID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*entity.Task
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkTaskRunning(ctx context.Context, taskID uuid.UUID, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, started_at = ? WHERE task_id = ?`,
		string(constants.TaskStatusRunning), fmtTime(startedAt), taskID.String())
	return err
}

func (s *SQLiteStore) CompleteTask(ctx context.Context, taskID uuid.UUID, output json.RawMessage, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, output = ?, finished_at = ? WHERE task_id = ?`,
		string(constants.TaskStatusCompleted), string(output), fmtTime(finishedAt), taskID.String())
	return err
}

func (s *SQLiteStore) FailTask(ctx context.Context, taskID uuid.UUID, errMsg string, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, error_message = ?, finished_at = ? WHERE task_id = ?`,
		string(constants.TaskStatusFailed), errMsg, fmtTime(finishedAt), taskID.String())
	return err
}

func (s *SQLiteStore) ListRunningBefore(ctx context.Context, cutoff time.Time) ([]*entity.Task, error) {
	rows, err := s.db.QueryContext(ctx, taskSelect+` WHERE status = ? AND started_at < ?`,
		string(constants.TaskStatusRunning), fmtTime(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*entity.Task
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() {
	if err := s.db.Close(); err != nil {
		s.log.Error("failed to close sqlite database", "error", err)
	}
}

const taskSelect = `SELECT task_id, job_id, task_type, task_order, status, input_ref, output, error_message, started_at, finished_at FROM tasks`

func (s *SQLiteStore) scanTask(row rowScanner) (*entity.Task, error) {
	var t entity.Task
	var id, jobID, taskType, status string
	var inputRef, output, started, finished *string
	if err := row.Scan(&id, &jobID, &taskType, &t.TaskOrder, &status, &inputRef, &output, &t.ErrorMessage, &started, &finished); err != nil {
		return nil, err
	}
	var err error
	if t.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if t.JobID, err = uuid.Parse(jobID); err != nil {
		return nil, err
	}
	t.TaskType = constants.TaskType(taskType)
	t.Status = constants.TaskStatus(status)
	if inputRef != nil {
		t.InputRef = *inputRef
	}
	if output != nil {
		t.Output = json.RawMessage(*output)
	}
	if t.StartedAt, err = parseTimePtr(started); err != nil {
		return nil, err
	}
	if t.FinishedAt, err = parseTimePtr(finished); err != nil {
		return nil, err
	}
	return &t, nil
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func fmtTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := fmtTime(*t)
	return &s
}

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
