// Package repository persists job and task rows. The orchestrator owns all
// state transitions; implementations here only provide durable CRUD and
// never enforce pipeline rules themselves.
package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/docscreen-io/docscreen/constants"
	"github.com/docscreen-io/docscreen/internal/entity"
)

// JobStore is the durable record store the pipeline core runs against.
type JobStore interface {
	// CreateJob inserts the job and its full task set.
	CreateJob(ctx context.Context, job *entity.Job, tasks []*entity.Task) error
	GetJob(ctx context.Context, jobID uuid.UUID) (*entity.Job, error)
	// SetJobStatus stores the redundant job status; callers keep it in sync
	// with task transitions within their own critical section.
	SetJobStatus(ctx context.Context, jobID uuid.UUID, status constants.JobStatus, errMsg *string, endTime *time.Time) error

	GetTask(ctx context.Context, taskID uuid.UUID) (*entity.Task, error)
	ListTasks(ctx context.Context, jobID uuid.UUID) ([]*entity.Task, error)
	MarkTaskRunning(ctx context.Context, taskID uuid.UUID, startedAt time.Time) error
	CompleteTask(ctx context.Context, taskID uuid.UUID, output json.RawMessage, finishedAt time.Time) error
	FailTask(ctx context.Context, taskID uuid.UUID, errMsg string, finishedAt time.Time) error

	// ListRunningBefore returns tasks still running whose start predates the
	// cutoff; the timeout sweeper uses it.
	ListRunningBefore(ctx context.Context, cutoff time.Time) ([]*entity.Task, error)

	Ping(ctx context.Context) error
	Close()
}
