// Package review derives the final review table for a job. ReviewRecords
// are never persisted: they are recomputed on demand from the comparison
// and review task outputs, which are immutable once those tasks complete.
package review

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/docscreen-io/docscreen/constants"
	"github.com/docscreen-io/docscreen/internal/common"
	"github.com/docscreen-io/docscreen/internal/compare"
	"github.com/docscreen-io/docscreen/internal/decode"
	"github.com/docscreen-io/docscreen/internal/entity"
	"github.com/docscreen-io/docscreen/internal/repository"
)

type Service struct {
	store repository.JobStore
	log   *slog.Logger
}

func NewService(store repository.JobStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, log: logger}
}

// Table reconciles the job's comparison output with its review verdicts.
// Both the comparison and review tasks must be completed; until then the
// dependency is missing and no empty table is substituted.
func (s *Service) Table(ctx context.Context, jobID uuid.UUID) ([]entity.ReviewRecord, error) {
	tasks, err := s.store.ListTasks(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, common.WrapError(common.ErrNotFound, "job "+jobID.String())
	}

	var cmpTask, revTask *entity.Task
	for _, t := range tasks {
		switch t.TaskOrder {
		case constants.OrderComparison:
			cmpTask = t
		case constants.OrderReview:
			revTask = t
		}
	}
	if cmpTask == nil || cmpTask.Status != constants.TaskStatusCompleted {
		return nil, common.WrapError(common.ErrMissingDependency, "comparison task not completed")
	}
	if revTask == nil || revTask.Status != constants.TaskStatusCompleted {
		return nil, common.WrapError(common.ErrMissingDependency, "review task not completed")
	}

	comparisons, err := comparisonsFrom(cmpTask.Output)
	if err != nil {
		return nil, err
	}
	verdicts, err := s.verdictsFrom(revTask.Output)
	if err != nil {
		return nil, err
	}
	return compare.Reconcile(comparisons, verdicts)
}

func comparisonsFrom(payload json.RawMessage) ([]entity.ComparisonRecord, error) {
	var out entity.ComparisonOutput
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("comparison output: %w", common.ErrMalformedEntityData)
	}
	if out.OutputComparisonJSON.Entities == nil {
		return []entity.ComparisonRecord{}, nil
	}
	return out.OutputComparisonJSON.Entities, nil
}

// verdictsFrom accepts both review payload variants: a bare
// {entities: [...]} envelope or a chat-completions response wrapping one.
func (s *Service) verdictsFrom(payload json.RawMessage) ([]entity.ReviewVerdict, error) {
	var out entity.ReviewOutput
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("review output: %w", common.ErrMalformedEntityData)
	}
	inner := bytes.TrimSpace(out.OutputReviewJSON)
	if len(inner) == 0 {
		return nil, fmt.Errorf("review output empty: %w", common.ErrMalformedEntityData)
	}
	var probe decode.ChatResponse
	if json.Unmarshal(inner, &probe) == nil && len(probe.Choices) > 0 {
		content, err := decode.Content(inner)
		if err != nil {
			return nil, err
		}
		inner = content
	}
	return decode.ReviewVerdicts(inner, s.log)
}
