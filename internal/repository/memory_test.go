package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/docscreen-io/docscreen/constants"
	"github.com/docscreen-io/docscreen/internal/common"
	"github.com/docscreen-io/docscreen/internal/entity"
)

func seedMemoryJob(t *testing.T, store *MemoryStore) (*entity.Job, []*entity.Task) {
	t.Helper()
	job := &entity.Job{
		ID:           uuid.New(),
		WorkflowName: constants.WorkflowName,
		InputSource:  "doc.pdf",
		Status:       constants.JobStatusPending,
		StartTime:    time.Now().UTC(),
	}
	// inserted out of order on purpose
	var tasks []*entity.Task
	for _, order := range []int{3, 1, 5, 2, 4} {
		tasks = append(tasks, &entity.Task{
			ID: uuid.New(), JobID: job.ID,
			TaskType: constants.TaskTypeNERProcessing, TaskOrder: order,
			Status: constants.TaskStatusPending,
		})
	}
	if err := store.CreateJob(context.Background(), job, tasks); err != nil {
		t.Fatal(err)
	}
	return job, tasks
}

func TestMemoryListTasksSortedByOrder(t *testing.T) {
	store := NewMemoryStore()
	job, _ := seedMemoryJob(t, store)

	got, err := store.ListTasks(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	for i, task := range got {
		if task.TaskOrder != i+1 {
			t.Errorf("position %d has order %d", i, task.TaskOrder)
		}
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	job, tasks := seedMemoryJob(t, store)

	fetched, err := store.GetTask(context.Background(), tasks[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	fetched.Status = constants.TaskStatusFailed

	again, err := store.GetTask(context.Background(), tasks[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Status != constants.TaskStatusPending {
		t.Error("mutating a returned task leaked into the store")
	}

	gotJob, err := store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	gotJob.Status = constants.JobStatusFailed
	againJob, _ := store.GetJob(context.Background(), job.ID)
	if againJob.Status != constants.JobStatusPending {
		t.Error("mutating a returned job leaked into the store")
	}
}

func TestMemoryTaskLifecycle(t *testing.T) {
	store := NewMemoryStore()
	_, tasks := seedMemoryJob(t, store)
	ctx := context.Background()
	id := tasks[0].ID
	now := time.Now().UTC()

	if err := store.MarkTaskRunning(ctx, id, now); err != nil {
		t.Fatal(err)
	}
	running, _ := store.GetTask(ctx, id)
	if running.Status != constants.TaskStatusRunning || running.StartedAt == nil {
		t.Fatalf("after MarkTaskRunning: %+v", running)
	}

	if err := store.CompleteTask(ctx, id, json.RawMessage(`{"output_text":"x"}`), now); err != nil {
		t.Fatal(err)
	}
	done, _ := store.GetTask(ctx, id)
	if done.Status != constants.TaskStatusCompleted || string(done.Output) != `{"output_text":"x"}` || done.FinishedAt == nil {
		t.Fatalf("after CompleteTask: %+v", done)
	}
}

func TestMemoryUnknownIDs(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.GetJob(ctx, uuid.New()); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("GetJob err = %v, want ErrNotFound", err)
	}
	if _, err := store.GetTask(ctx, uuid.New()); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("GetTask err = %v, want ErrNotFound", err)
	}
	if err := store.FailTask(ctx, uuid.New(), "x", time.Now()); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("FailTask err = %v, want ErrNotFound", err)
	}
}

func TestMemoryListRunningBefore(t *testing.T) {
	store := NewMemoryStore()
	_, tasks := seedMemoryJob(t, store)
	ctx := context.Background()

	old := time.Now().UTC().Add(-time.Hour)
	if err := store.MarkTaskRunning(ctx, tasks[0].ID, old); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkTaskRunning(ctx, tasks[1].ID, time.Now().UTC()); err != nil {
		t.Fatal(err)
	}

	stuck, err := store.ListRunningBefore(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(stuck) != 1 || stuck[0].ID != tasks[0].ID {
		t.Fatalf("stuck = %+v, want only the hour-old task", stuck)
	}
}
