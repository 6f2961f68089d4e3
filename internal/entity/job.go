package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/docscreen-io/docscreen/constants"
)

// Job represents one document-screening request for data transfer between layers.
type Job struct {
	ID           uuid.UUID           `json:"id"`
	WorkflowName string              `json:"workflow_name"`
	InputSource  string              `json:"input_source"`
	Status       constants.JobStatus `json:"status"`
	StartTime    time.Time           `json:"start_time"`
	EndTime      *time.Time          `json:"end_time,omitempty"`
	ErrorMessage *string             `json:"error_message,omitempty"`
}

// Task represents one pipeline stage belonging to exactly one job.
// (TaskType, TaskOrder) is unique within a job; Output is immutable once
// Status becomes completed.
type Task struct {
	ID           uuid.UUID            `json:"id"`
	JobID        uuid.UUID            `json:"job_id"`
	TaskType     constants.TaskType   `json:"task_type"`
	TaskOrder    int                  `json:"task_order"`
	Status       constants.TaskStatus `json:"status"`
	InputRef     string               `json:"input_ref,omitempty"`
	Output       json.RawMessage      `json:"output,omitempty"`
	ErrorMessage *string              `json:"error_message,omitempty"`
	StartedAt    *time.Time           `json:"started_at,omitempty"`
	FinishedAt   *time.Time           `json:"finished_at,omitempty"`
}
