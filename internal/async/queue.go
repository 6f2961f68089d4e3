// Package async runs dispatched tasks on a fixed worker pool. The
// orchestrator enqueues; workers execute the stage and report the result
// back so dependent tasks can advance.
package async

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docscreen-io/docscreen/internal/entity"
)

// StageRunner executes one task and returns its output payload.
type StageRunner interface {
	Run(ctx context.Context, job *entity.Job, task *entity.Task) (json.RawMessage, error)
}

// Resulter receives task outcomes. The orchestrator satisfies this.
type Resulter interface {
	AdvanceTask(ctx context.Context, taskID uuid.UUID, output json.RawMessage) error
	FailTask(ctx context.Context, taskID uuid.UUID, errMsg string) error
}

type dispatchItem struct {
	job  *entity.Job
	task *entity.Task
}

// TaskQueue is a fixed-size worker pool over an unbounded pending list.
// Dispatch never blocks: workers report results through the orchestrator,
// which re-enters Dispatch when dependents fan out, so a blocking enqueue
// would let a worker wedge itself as its own producer. Shutdown drains
// pending and in-flight work.
type TaskQueue struct {
	runner  StageRunner
	results Resulter
	log     *slog.Logger
	workers int
	timeout time.Duration
	softCap int

	wg   sync.WaitGroup
	once sync.Once

	mu      sync.Mutex
	cond    *sync.Cond
	pending []dispatchItem
	closed  bool
}

type Option func(*TaskQueue)

func WithWorkers(n int) Option {
	return func(q *TaskQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithQueueSize sets the depth watermark above which enqueues are logged
// as backlog; the pending list itself is unbounded.
func WithQueueSize(n int) Option {
	return func(q *TaskQueue) {
		if n > 0 {
			q.softCap = n
		}
	}
}

func WithTaskTimeout(d time.Duration) Option {
	return func(q *TaskQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewTaskQueue(runner StageRunner, results Resulter, logger *slog.Logger, opts ...Option) *TaskQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &TaskQueue{
		runner:  runner,
		results: results,
		log:     logger,
		workers: 4,
		timeout: 3 * time.Minute,
		softCap: 256,
	}
	for _, o := range opts {
		o(q)
	}
	q.cond = sync.NewCond(&q.mu)
	q.start()
	return q
}

func (q *TaskQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.worker(i + 1)
		}
	})
}

func (q *TaskQueue) worker(workerID int) {
	defer q.wg.Done()
	q.log.Info("worker started", "worker_id", workerID)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			q.log.Info("worker stopped", "worker_id", workerID)
			return
		}
		item := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.process(workerID, item)
	}
}

func (q *TaskQueue) process(workerID int, item dispatchItem) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	output, err := q.runner.Run(ctx, item.job, item.task)
	if err != nil {
		q.log.Error("task failed",
			"worker_id", workerID,
			"job_id", item.job.ID,
			"task_id", item.task.ID,
			"task_type", item.task.TaskType,
			"task_order", item.task.TaskOrder,
			"error", err,
		)
		if ferr := q.results.FailTask(ctx, item.task.ID, err.Error()); ferr != nil {
			q.log.Error("task failure not recorded", "task_id", item.task.ID, "error", ferr)
		}
		return
	}

	q.log.Info("task completed",
		"worker_id", workerID,
		"job_id", item.job.ID,
		"task_id", item.task.ID,
		"task_type", item.task.TaskType,
		"task_order", item.task.TaskOrder,
	)
	if aerr := q.results.AdvanceTask(ctx, item.task.ID, output); aerr != nil {
		q.log.Error("task result not recorded", "task_id", item.task.ID, "error", aerr)
	}
}

// Dispatch satisfies the orchestrator's dispatcher contract: it never
// blocks, even when the caller is one of this queue's own workers. After
// shutdown begins the item is dropped; the timeout sweep reclaims it.
func (q *TaskQueue) Dispatch(_ context.Context, job *entity.Job, task *entity.Task) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.log.Warn("cannot enqueue: queue is shutting down", "task_id", task.ID)
		return
	}
	q.pending = append(q.pending, dispatchItem{job: job, task: task})
	depth := len(q.pending)
	q.cond.Signal()
	q.mu.Unlock()

	if depth > q.softCap {
		q.log.Warn("queue backlog above watermark", "task_id", task.ID, "depth", depth, "watermark", q.softCap)
		return
	}
	q.log.Info("queued task", "job_id", job.ID, "task_id", task.ID, "task_type", task.TaskType, "task_order", task.TaskOrder)
}

// Shutdown closes intake and waits for pending and in-flight tasks until
// ctx expires.
func (q *TaskQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.log.Warn("shutdown interrupted by context")
	case <-done:
		q.log.Info("queue drained, shutdown complete")
	}
}
