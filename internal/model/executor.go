package model

import (
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
	"github.com/docscreen-io/docscreen/internal/ingest"
	"github.com/docscreen-io/docscreen/internal/repository"
)

// Runner executes one task of any stage and returns the payload to store
// on the task row. The dispatcher owns the surrounding state transitions.
type Runner struct {
	client  *Client
	models  common.ModelsConfig
	store   repository.JobStore
	uploads *ingest.Store
	log     *slog.Logger
}

func NewRunner(client *Client, models common.ModelsConfig, store repository.JobStore, uploads *ingest.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{client: client, models: models, store: store, uploads: uploads, log: logger}
}

// Run executes the stage matching the task's type and order.
func (r *Runner) Run(ctx context.Context, job *entity.Job, task *entity.Task) (json.RawMessage, error) {
	ctx = common.WithJobID(ctx, job.ID.String())
	switch task.TaskType {
	case constants.TaskTypeVLMExtraction:
		return r.runExtraction(ctx, task)
	case constants.TaskTypeNERProcessing:
		return r.runNER(ctx, task)
	case constants.TaskTypeJSONComparison:
		return r.runComparison(ctx, task)
	case constants.TaskTypeVLMReview:
		return r.runReview(ctx, task)
	default:
		return nil, common.WrapError(common.ErrInternal, "unknown task type "+string(task.TaskType))
	}
}

// runExtraction sends the document to the vision model and stores the
// transcribed text. Images and PDFs go as multimodal parts, everything
// else as inline text.
func (r *Runner) runExtraction(ctx context.Context, task *entity.Task) (json.RawMessage, error) {
	cfg := r.models.VLM
	content, err := r.extractionContent(task.InputRef, cfg.UserPrompt)
	if err != nil {
		return nil, err
	}
	raw, err := r.client.Chat(ctx, cfg, []Message{
		{Role: "system", Content: cfg.SystemPrompt},
		{Role: "user", Content: content},
	})
	if err != nil {
		return nil, err
	}
	text, err := decode.Text(raw)
	if err != nil {
		return nil, err
	}
	return json.Marshal(entity.ExtractionOutput{OutputText: text})
}

func (r *Runner) extractionContent(inputRef, userPrompt string) (any, error) {
	if userPrompt == "" {
		userPrompt = "Transcribe every field of this document verbatim."
	}
	switch {
	case constants.IsURL(inputRef):
		return []any{TextPart{Type: "text", Text: userPrompt}, NewImagePart(inputRef)}, nil
	case constants.DetectInputKind(inputRef) == constants.InputKindText:
		text, err := r.uploads.ReadText(inputRef)
		if err != nil {
			return nil, err
		}
		return userPrompt + "\n\n" + text, nil
	default:
		dataURL, err := r.uploads.DataURL(inputRef)
		if err != nil {
			return nil, err
		}
		return []any{TextPart{Type: "text", Text: userPrompt}, NewImagePart(dataURL)}, nil
	}
}

// runNER extracts entities from the transcription with the model bound to
// this task's order. The full chat response is stored; readers unwrap it.
func (r *Runner) runNER(ctx context.Context, task *entity.Task) (json.RawMessage, error) {
	cfg := r.models.NER1
	if task.TaskOrder == constants.OrderNERSecond {
		cfg = r.models.NER2
	}
	text, err := r.dependencyText(ctx, task.JobID)
	if err != nil {
		return nil, err
	}
	prompt := cfg.UserPrompt
	if prompt == "" {
		prompt = "Extract every named entity from the document below as JSON {\"entities\": [{\"entity_name\", \"entity_value\", \"confidence\"}]}."
	}
	raw, err := r.client.Chat(ctx, cfg, []Message{
		{Role: "system", Content: cfg.SystemPrompt},
		{Role: "user", Content: prompt + "\n\n" + text},
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(entity.NEROutput{OutputJSON: raw})
}

// runComparison diffs the two NER entity sets. No model call happens here;
// malformed upstream envelopes fail the task.
func (r *Runner) runComparison(ctx context.Context, task *entity.Task) (json.RawMessage, error) {
	setA, err := r.entitySet(ctx, task.JobID, constants.OrderNERFirst)
	if err != nil {
		return nil, err
	}
	setB, err := r.entitySet(ctx, task.JobID, constants.OrderNERSecond)
	if err != nil {
		return nil, err
	}
	records := compare.Compare(setA, setB)
	return json.Marshal(entity.ComparisonOutput{
		OutputComparisonJSON: entity.ComparisonEnvelope{Entities: records},
	})
}

// runReview asks the review model for a per-entity verdict over the
// transcription. The full chat response is stored.
func (r *Runner) runReview(ctx context.Context, task *entity.Task) (json.RawMessage, error) {
	cfg := r.models.Review
	text, err := r.dependencyText(ctx, task.JobID)
	if err != nil {
		return nil, err
	}
	prompt := cfg.UserPrompt
	if prompt == "" {
		prompt = "Review the document below and return JSON {\"entities\": [{\"entity_name\", \"entity_value\", \"reviewed\"}]} where reviewed is \"yes\" or \"no\"."
	}
	raw, err := r.client.Chat(ctx, cfg, []Message{
		{Role: "system", Content: cfg.SystemPrompt},
		{Role: "user", Content: prompt + "\n\n" + text},
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(entity.ReviewOutput{OutputReviewJSON: raw})
}

// dependencyText loads the completed extraction task's output text.
func (r *Runner) dependencyText(ctx context.Context, jobID uuid.UUID) (string, error) {
	out, err := r.dependencyOutput(ctx, jobID, constants.OrderExtraction)
	if err != nil {
		return "", err
	}
	var payload entity.ExtractionOutput
	if err := json.Unmarshal(out, &payload); err != nil {
		return "", common.WrapError(err, "decode extraction output")
	}
	return payload.OutputText, nil
}

// entitySet loads one NER task's stored response and decodes its entity
// envelope.
func (r *Runner) entitySet(ctx context.Context, jobID uuid.UUID, order int) ([]entity.Entity, error) {
	out, err := r.dependencyOutput(ctx, jobID, order)
	if err != nil {
		return nil, err
	}
	var payload entity.NEROutput
	if err := json.Unmarshal(out, &payload); err != nil {
		return nil, common.WrapError(err, "decode ner output")
	}
	content, err := decode.Content(payload.OutputJSON)
	if err != nil {
		return nil, err
	}
	return decode.EntitySet(content, r.log)
}

// dependencyOutput fetches the completed task at the given order. The
// orchestrator only dispatches once dependencies completed, so anything
// else here is an internal inconsistency.
func (r *Runner) dependencyOutput(ctx context.Context, jobID uuid.UUID, order int) (json.RawMessage, error) {
	tasks, err := r.store.ListTasks(ctx, jobID)
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if t.TaskOrder != order {
			continue
		}
		if t.Status != constants.TaskStatusCompleted {
			return nil, common.WrapError(common.ErrMissingDependency,
				fmt.Sprintf("task order %d is %s", order, t.Status))
		}
		return t.Output, nil
	}
	return nil, common.WrapError(common.ErrInternal, fmt.Sprintf("no task at order %d", order))
}
