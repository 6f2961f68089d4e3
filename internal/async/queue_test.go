package async

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/docscreen-io/docscreen/constants"
	"github.com/docscreen-io/docscreen/internal/entity"
)

type stubRunner struct {
	mu  sync.Mutex
	err error
	ran []uuid.UUID
}

func (r *stubRunner) Run(_ context.Context, _ *entity.Job, task *entity.Task) (json.RawMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, task.ID)
	if r.err != nil {
		return nil, r.err
	}
	return json.RawMessage(`{"output_text":"ok"}`), nil
}

type stubResulter struct {
	mu       sync.Mutex
	advanced map[uuid.UUID]json.RawMessage
	failed   map[uuid.UUID]string
	done     chan struct{}
}

func newStubResulter() *stubResulter {
	return &stubResulter{
		advanced: map[uuid.UUID]json.RawMessage{},
		failed:   map[uuid.UUID]string{},
		done:     make(chan struct{}, 16),
	}
}

func (r *stubResulter) AdvanceTask(_ context.Context, taskID uuid.UUID, output json.RawMessage) error {
	r.mu.Lock()
	r.advanced[taskID] = output
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *stubResulter) FailTask(_ context.Context, taskID uuid.UUID, errMsg string) error {
	r.mu.Lock()
	r.failed[taskID] = errMsg
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func dispatchItemFor() (*entity.Job, *entity.Task) {
	job := &entity.Job{ID: uuid.New()}
	task := &entity.Task{
		ID: uuid.New(), JobID: job.ID,
		TaskType: constants.TaskTypeVLMExtraction, TaskOrder: constants.OrderExtraction,
		Status: constants.TaskStatusRunning,
	}
	return job, task
}

func waitDone(t *testing.T, r *stubResulter) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("no result reported")
	}
}

func TestQueueReportsSuccess(t *testing.T) {
	runner := &stubRunner{}
	results := newStubResulter()
	q := NewTaskQueue(runner, results, nil, WithWorkers(2))
	defer q.Shutdown(context.Background())

	job, task := dispatchItemFor()
	q.Dispatch(context.Background(), job, task)
	waitDone(t, results)

	results.mu.Lock()
	defer results.mu.Unlock()
	if string(results.advanced[task.ID]) != `{"output_text":"ok"}` {
		t.Errorf("advanced output = %s", results.advanced[task.ID])
	}
	if len(results.failed) != 0 {
		t.Errorf("unexpected failures: %v", results.failed)
	}
}

func TestQueueReportsFailure(t *testing.T) {
	runner := &stubRunner{err: errors.New("model unavailable")}
	results := newStubResulter()
	q := NewTaskQueue(runner, results, nil, WithWorkers(1))
	defer q.Shutdown(context.Background())

	job, task := dispatchItemFor()
	q.Dispatch(context.Background(), job, task)
	waitDone(t, results)

	results.mu.Lock()
	defer results.mu.Unlock()
	if results.failed[task.ID] != "model unavailable" {
		t.Errorf("failure message = %q", results.failed[task.ID])
	}
}

// fanoutResulter re-enters the queue from the worker's own result
// callback, the way the orchestrator dispatches dependents when an
// upstream task completes.
type fanoutResulter struct {
	*stubResulter
	q    *TaskQueue
	mu   sync.Mutex
	next []dispatchItem
}

func (r *fanoutResulter) AdvanceTask(ctx context.Context, taskID uuid.UUID, output json.RawMessage) error {
	r.mu.Lock()
	next := r.next
	r.next = nil
	r.mu.Unlock()
	for _, it := range next {
		r.q.Dispatch(ctx, it.job, it.task)
	}
	return r.stubResulter.AdvanceTask(ctx, taskID, output)
}

func TestQueueFanOutFromWorkerDoesNotBlock(t *testing.T) {
	runner := &stubRunner{}
	results := &fanoutResulter{stubResulter: newStubResulter()}
	q := NewTaskQueue(runner, results, nil, WithWorkers(1), WithQueueSize(1))
	results.q = q
	defer q.Shutdown(context.Background())

	// One completion fans out three dependents, mirroring extraction
	// unlocking both NER stages and the review stage. With a single
	// worker the re-entrant dispatches must not wait for a consumer.
	const fanout = 3
	for i := 0; i < fanout; i++ {
		job, task := dispatchItemFor()
		results.next = append(results.next, dispatchItem{job: job, task: task})
	}

	root, rootTask := dispatchItemFor()
	q.Dispatch(context.Background(), root, rootTask)

	for i := 0; i < fanout+1; i++ {
		waitDone(t, results.stubResulter)
	}

	results.stubResulter.mu.Lock()
	defer results.stubResulter.mu.Unlock()
	if len(results.advanced) != fanout+1 {
		t.Errorf("advanced %d tasks, want %d", len(results.advanced), fanout+1)
	}
}

func TestQueueShutdownDrainsInFlightWork(t *testing.T) {
	runner := &stubRunner{}
	results := newStubResulter()
	q := NewTaskQueue(runner, results, nil, WithWorkers(1), WithQueueSize(8))

	const n = 5
	for i := 0; i < n; i++ {
		job, task := dispatchItemFor()
		q.Dispatch(context.Background(), job, task)
	}
	q.Shutdown(context.Background())

	results.mu.Lock()
	defer results.mu.Unlock()
	if len(results.advanced) != n {
		t.Errorf("advanced %d tasks, want %d", len(results.advanced), n)
	}

	// A dispatch after shutdown is dropped, not queued.
	job, task := dispatchItemFor()
	q.Dispatch(context.Background(), job, task)
	if _, ok := results.advanced[task.ID]; ok {
		t.Error("dispatch after shutdown was executed")
	}
}
