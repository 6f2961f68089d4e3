package constants

// JobStatus is the canonical status for rows in jobs.
type JobStatus string

// Stable values (store these exact strings in DB).
const (
	JobStatusPending   JobStatus = "pending"   // created, no task started yet
	JobStatusRunning   JobStatus = "running"   // at least one task started
	JobStatusCompleted JobStatus = "completed" // all tasks completed
	JobStatusFailed    JobStatus = "failed"    // terminal failure
)

// Terminal reports whether the job reached a final state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// TaskStatus is the canonical status for rows in tasks.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TaskType identifies the pipeline stage a task executes.
type TaskType string

const (
	TaskTypeVLMExtraction  TaskType = "vlm_extraction"
	TaskTypeNERProcessing  TaskType = "ner_processing"
	TaskTypeJSONComparison TaskType = "json_comparison"
	TaskTypeVLMReview      TaskType = "vlm_review"
)

// Fixed task orders within a job. Two ner_processing tasks exist, so
// (task_type, task_order) is the unique stage identity.
const (
	OrderExtraction = 1
	OrderNERFirst   = 2
	OrderNERSecond  = 3
	OrderComparison = 4
	OrderReview     = 5
)

// Failure reason labels recorded on a failed task's error payload.
const (
	ReasonUpstreamFailure = "UpstreamFailure"
	ReasonTimeout         = "Timeout"
)

// WorkflowName tags job rows created by the screening pipeline.
const WorkflowName = "compare_llms"
