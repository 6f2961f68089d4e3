package server

import (
	"time"

	"github.com/google/uuid"

	"github.com/docscreen-io/docscreen/internal/entity"
)

// JobCreatedResponse acknowledges an accepted screening job.
type JobCreatedResponse struct {
	JobID            uuid.UUID `json:"job_id"`
	UploadedFilename string    `json:"uploaded_filename"`
}

// TaskStatusEntry is one task row of the job status response.
type TaskStatusEntry struct {
	TaskID       uuid.UUID `json:"task_id"`
	TaskType     string    `json:"task_type"`
	TaskOrder    int       `json:"task_order"`
	Status       string    `json:"status"`
	ErrorMessage *string   `json:"error_message,omitempty"`
}

// JobStatusResponse is the job status document.
type JobStatusResponse struct {
	JobID        uuid.UUID         `json:"job_id"`
	WorkflowName string            `json:"workflow_name"`
	InputSource  string            `json:"input_source"`
	JobStatus    string            `json:"job_status"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      *time.Time        `json:"end_time,omitempty"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	Tasks        []TaskStatusEntry `json:"tasks"`
}

func toJobStatusResponse(job *entity.Job, tasks []*entity.Task) JobStatusResponse {
	resp := JobStatusResponse{
		JobID:        job.ID,
		WorkflowName: job.WorkflowName,
		InputSource:  job.InputSource,
		JobStatus:    string(job.Status),
		StartTime:    job.StartTime,
		EndTime:      job.EndTime,
		ErrorMessage: job.ErrorMessage,
		Tasks:        make([]TaskStatusEntry, 0, len(tasks)),
	}
	for _, t := range tasks {
		resp.Tasks = append(resp.Tasks, TaskStatusEntry{
			TaskID:       t.ID,
			TaskType:     string(t.TaskType),
			TaskOrder:    t.TaskOrder,
			Status:       string(t.Status),
			ErrorMessage: t.ErrorMessage,
		})
	}
	return resp
}

// ReviewTableResponse is the reconciled review table document.
type ReviewTableResponse struct {
	JobID    uuid.UUID             `json:"job_id"`
	Entities []entity.ReviewRecord `json:"entities"`
}
