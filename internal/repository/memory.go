package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docscreen-io/docscreen/constants"
	"github.com/docscreen-io/docscreen/internal/common"
	"github.com/docscreen-io/docscreen/internal/entity"
)

// MemoryStore is the in-process JobStore used by tests and the default
// single-node deployment.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[uuid.UUID]*entity.Job
	tasks map[uuid.UUID]*entity.Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[uuid.UUID]*entity.Job),
		tasks: make(map[uuid.UUID]*entity.Task),
	}
}

func (s *MemoryStore) CreateJob(_ context.Context, job *entity.Job, tasks []*entity.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := *job
	s.jobs[job.ID] = &j
	for _, t := range tasks {
		tc := *t
		s.tasks[t.ID] = &tc
	}
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, jobID uuid.UUID) (*entity.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, common.WrapError(common.ErrNotFound, "job "+jobID.String())
	}
	jc := *j
	return &jc, nil
}

func (s *MemoryStore) SetJobStatus(_ context.Context, jobID uuid.UUID, status constants.JobStatus, errMsg *string, endTime *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return common.WrapError(common.ErrNotFound, "job "+jobID.String())
	}
	j.Status = status
	if errMsg != nil {
		j.ErrorMessage = errMsg
	}
	if endTime != nil {
		j.EndTime = endTime
	}
	return nil
}

func (s *MemoryStore) GetTask(_ context.Context, taskID uuid.UUID) (*entity.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, common.WrapError(common.ErrNotFound, "task "+taskID.String())
	}
	tc := *t
	return &tc, nil
}

func (s *MemoryStore) ListTasks(_ context.Context, jobID uuid.UUID) ([]*entity.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entity.Task
	for _, t := range s.tasks {
		if t.JobID == jobID {
			tc := *t
			out = append(out, &tc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskOrder < out[j].TaskOrder })
	return out, nil
}

func (s *MemoryStore) MarkTaskRunning(_ context.Context, taskID uuid.UUID, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return common.WrapError(common.ErrNotFound, "task "+taskID.String())
	}
	t.Status = constants.TaskStatusRunning
	t.StartedAt = &startedAt
	return nil
}

func (s *MemoryStore) CompleteTask(_ context.Context, taskID uuid.UUID, output json.RawMessage, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return common.WrapError(common.ErrNotFound, "task "+taskID.String())
	}
	t.Status = constants.TaskStatusCompleted
	t.Output = append(json.RawMessage(nil), output...)
	t.FinishedAt = &finishedAt
	return nil
}

func (s *MemoryStore) FailTask(_ context.Context, taskID uuid.UUID, errMsg string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return common.WrapError(common.ErrNotFound, "task "+taskID.String())
	}
	t.Status = constants.TaskStatusFailed
	t.ErrorMessage = &errMsg
	t.FinishedAt = &finishedAt
	return nil
}

func (s *MemoryStore) ListRunningBefore(_ context.Context, cutoff time.Time) ([]*entity.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*entity.Task
	for _, t := range s.tasks {
		if t.Status == constants.TaskStatusRunning && t.StartedAt != nil && t.StartedAt.Before(cutoff) {
			tc := *t
			out = append(out, &tc)
		}
	}
	return out, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() {}
