// Package orchestrator owns the job/task state machine: it creates the
// ordered task set for a job, advances task status as stage results arrive,
// and dispatches dependent tasks exactly once when their preconditions are
// met. Tasks move pending -> running -> completed|failed and terminal
// states are final; a fresh run requires a fresh job.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docscreen-io/docscreen/constants"
	"github.com/docscreen-io/docscreen/internal/common"
	"github.com/docscreen-io/docscreen/internal/entity"
	"github.com/docscreen-io/docscreen/internal/repository"
)

// Dispatcher hands a ready task to whatever executes stages. The call must
// not block: the orchestrator invokes it outside its critical section but
// on the caller's goroutine.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *entity.Job, task *entity.Task)
}

// InputResolver checks that an input reference points at retrievable
// content before a job is created for it.
type InputResolver interface {
	Resolve(ctx context.Context, inputRef string) error
}

// Orchestrator coordinates the screening pipeline over a durable job store.
type Orchestrator struct {
	store    repository.JobStore
	resolver InputResolver // nil means any non-empty ref is accepted
	disp     Dispatcher
	log      *slog.Logger

	mu     sync.Mutex
	jobMus map[uuid.UUID]*jobLock
}

func New(store repository.JobStore, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:  store,
		log:    logger,
		jobMus: make(map[uuid.UUID]*jobLock),
	}
}

// SetDispatcher wires the task executor in. Must be called before CreateJob;
// it is separate from New only because the executor needs the orchestrator
// to report results back to.
func (o *Orchestrator) SetDispatcher(d Dispatcher) { o.disp = d }

// SetInputResolver installs upload-reference validation for CreateJob.
func (o *Orchestrator) SetInputResolver(r InputResolver) { o.resolver = r }

// CreateJob allocates a pending job with its five pending tasks and kicks
// off the stages that have no dependencies.
func (o *Orchestrator) CreateJob(ctx context.Context, inputRef string) (*entity.Job, error) {
	if inputRef == "" {
		return nil, common.WrapError(common.ErrInvalidInput, "empty input reference")
	}
	if o.resolver != nil {
		if err := o.resolver.Resolve(ctx, inputRef); err != nil {
			return nil, fmt.Errorf("input %q: %w", inputRef, common.ErrInvalidInput)
		}
	}

	job := &entity.Job{
		ID:           uuid.New(),
		WorkflowName: constants.WorkflowName,
		InputSource:  inputRef,
		Status:       constants.JobStatusPending,
		StartTime:    time.Now().UTC(),
	}
	tasks := make([]*entity.Task, 0, len(pipelineStages))
	for _, stage := range pipelineStages {
		tasks = append(tasks, &entity.Task{
			ID:        uuid.New(),
			JobID:     job.ID,
			TaskType:  stage.Type,
			TaskOrder: stage.Order,
			Status:    constants.TaskStatusPending,
			InputRef:  inputRef,
		})
	}
	if err := o.store.CreateJob(ctx, job, tasks); err != nil {
		o.log.Error("job create failed", "error", err)
		return nil, err
	}
	o.log.Info("job created", "job_id", job.ID, "input", inputRef, "tasks", len(tasks))

	ready, err := o.evaluate(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	o.dispatchAll(ctx, ready)
	return job, nil
}

// AdvanceTask records a successful stage result and dispatches any
// dependent tasks whose preconditions are now satisfied.
func (o *Orchestrator) AdvanceTask(ctx context.Context, taskID uuid.UUID, output json.RawMessage) error {
	return o.advance(ctx, taskID, output, "")
}

// FailTask records a stage failure. The transition is accepted from running
// at any time, so the supervisory timeout sweep uses it too.
func (o *Orchestrator) FailTask(ctx context.Context, taskID uuid.UUID, errMsg string) error {
	if errMsg == "" {
		errMsg = "stage failed"
	}
	return o.advance(ctx, taskID, nil, errMsg)
}

func (o *Orchestrator) advance(ctx context.Context, taskID uuid.UUID, output json.RawMessage, failMsg string) error {
	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	var ready []pendingDispatch
	err = o.withJobLock(task.JobID, func() error {
		// re-read under the lock; a concurrent advance may have raced us
		task, err = o.store.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task.Status.Terminal() {
			return fmt.Errorf("task %s already %s: %w", taskID, task.Status, common.ErrInvalidInput)
		}

		now := time.Now().UTC()
		if failMsg != "" {
			if err := o.store.FailTask(ctx, taskID, failMsg, now); err != nil {
				return err
			}
			o.log.Warn("task failed", "task_id", taskID, "job_id", task.JobID, "task_type", task.TaskType, "error", failMsg)
		} else {
			if err := o.store.CompleteTask(ctx, taskID, output, now); err != nil {
				return err
			}
			o.log.Info("task completed", "task_id", taskID, "job_id", task.JobID, "task_type", task.TaskType, "task_order", task.TaskOrder)
		}

		ready, err = o.evaluateLocked(ctx, task.JobID)
		return err
	})
	if err != nil {
		return err
	}

	// Dispatch outside the critical section; the bookkeeping is already
	// durable, so a slow executor cannot stall a concurrent advance.
	o.dispatchAll(ctx, ready)
	return nil
}

// JobStatus returns the job with its tasks. The stored job status is kept
// in sync with task transitions inside the same critical section, so the
// two views cannot drift.
func (o *Orchestrator) JobStatus(ctx context.Context, jobID uuid.UUID) (*entity.Job, []*entity.Task, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	tasks, err := o.store.ListTasks(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	return job, tasks, nil
}

type pendingDispatch struct {
	job  *entity.Job
	task *entity.Task
}

// evaluate runs one dependency-graph evaluation under the job lock.
func (o *Orchestrator) evaluate(ctx context.Context, jobID uuid.UUID) ([]pendingDispatch, error) {
	var ready []pendingDispatch
	err := o.withJobLock(jobID, func() error {
		var err error
		ready, err = o.evaluateLocked(ctx, jobID)
		return err
	})
	return ready, err
}

// evaluateLocked propagates failures to dependents, claims newly ready
// tasks (pending -> running), and recomputes the job status. Claiming
// happens here, under the per-job lock, which is what makes dependent
// dispatch exactly-once when two upstream tasks complete together.
func (o *Orchestrator) evaluateLocked(ctx context.Context, jobID uuid.UUID) ([]pendingDispatch, error) {
	tasks, err := o.store.ListTasks(ctx, jobID)
	if err != nil {
		return nil, err
	}
	byOrder := make(map[int]*entity.Task, len(tasks))
	for _, t := range tasks {
		byOrder[t.TaskOrder] = t
	}

	now := time.Now().UTC()

	// Failures propagate forward until nothing changes: a dependent of a
	// failed task fails, which may fail its own dependents in turn.
	for changed := true; changed; {
		changed = false
		for _, t := range tasks {
			if t.Status != constants.TaskStatusPending {
				continue
			}
			for _, dep := range dependenciesOf(t.TaskOrder) {
				up := byOrder[dep.Order]
				if up != nil && up.Status == constants.TaskStatusFailed {
					msg := fmt.Sprintf("%s: %s@%d failed", constants.ReasonUpstreamFailure, dep.Type, dep.Order)
					if err := o.store.FailTask(ctx, t.ID, msg, now); err != nil {
						return nil, err
					}
					t.Status = constants.TaskStatusFailed
					t.ErrorMessage = &msg
					o.log.Warn("task failed", "task_id", t.ID, "job_id", jobID, "task_type", t.TaskType, "reason", constants.ReasonUpstreamFailure)
					changed = true
					break
				}
			}
		}
	}

	anyFailed := false
	for _, t := range tasks {
		if t.Status == constants.TaskStatusFailed {
			anyFailed = true
			break
		}
	}

	var ready []pendingDispatch
	var job *entity.Job
	for _, t := range tasks {
		// a failed job dispatches nothing further
		if anyFailed || t.Status != constants.TaskStatusPending || !depsCompleted(t.TaskOrder, byOrder) {
			continue
		}
		if err := o.store.MarkTaskRunning(ctx, t.ID, now); err != nil {
			return nil, err
		}
		t.Status = constants.TaskStatusRunning
		t.StartedAt = &now
		if job == nil {
			if job, err = o.store.GetJob(ctx, jobID); err != nil {
				return nil, err
			}
		}
		ready = append(ready, pendingDispatch{job: job, task: t})
		o.log.Info("task dispatched", "task_id", t.ID, "job_id", jobID, "task_type", t.TaskType, "task_order", t.TaskOrder)
	}

	status, errMsg := ComputeJobStatus(tasks)
	var endTime *time.Time
	if status.Terminal() {
		endTime = &now
	}
	if err := o.store.SetJobStatus(ctx, jobID, status, errMsg, endTime); err != nil {
		return nil, err
	}
	return ready, nil
}

func depsCompleted(order int, byOrder map[int]*entity.Task) bool {
	for _, dep := range dependenciesOf(order) {
		up := byOrder[dep.Order]
		if up == nil || up.Status != constants.TaskStatusCompleted {
			return false
		}
	}
	return true
}

// ComputeJobStatus derives the job status purely from task statuses:
// completed iff all tasks completed, failed iff any task failed, pending
// iff nothing started, running otherwise.
func ComputeJobStatus(tasks []*entity.Task) (constants.JobStatus, *string) {
	allCompleted := len(tasks) > 0
	anyStarted := false
	for _, t := range tasks {
		if t.Status == constants.TaskStatusFailed {
			msg := fmt.Sprintf("%s@%d failed", t.TaskType, t.TaskOrder)
			if t.ErrorMessage != nil {
				msg = fmt.Sprintf("%s@%d: %s", t.TaskType, t.TaskOrder, *t.ErrorMessage)
			}
			return constants.JobStatusFailed, &msg
		}
		if t.Status != constants.TaskStatusCompleted {
			allCompleted = false
		}
		if t.Status != constants.TaskStatusPending {
			anyStarted = true
		}
	}
	switch {
	case allCompleted:
		return constants.JobStatusCompleted, nil
	case anyStarted:
		return constants.JobStatusRunning, nil
	default:
		return constants.JobStatusPending, nil
	}
}

func (o *Orchestrator) dispatchAll(ctx context.Context, ready []pendingDispatch) {
	if o.disp == nil {
		return
	}
	for _, pd := range ready {
		o.disp.Dispatch(ctx, pd.job, pd.task)
	}
}

type jobLock struct {
	sync.Mutex
	refs int
}

// withJobLock serializes bookkeeping per job. Locks are small and released
// before any dispatch or external call happens. Entries are refcounted and
// removed once no caller holds them, so the map tracks only in-flight jobs
// rather than every job the daemon has ever seen.
func (o *Orchestrator) withJobLock(jobID uuid.UUID, fn func() error) error {
	o.mu.Lock()
	jl, ok := o.jobMus[jobID]
	if !ok {
		jl = &jobLock{}
		o.jobMus[jobID] = jl
	}
	jl.refs++
	o.mu.Unlock()

	jl.Lock()
	err := fn()
	jl.Unlock()

	o.mu.Lock()
	jl.refs--
	if jl.refs == 0 {
		delete(o.jobMus, jobID)
	}
	o.mu.Unlock()
	return err
}
