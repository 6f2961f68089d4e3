package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/docscreen-io/docscreen/constants"
	"github.com/docscreen-io/docscreen/internal/common"
	"github.com/docscreen-io/docscreen/internal/entity"
	"github.com/docscreen-io/docscreen/internal/ingest"
	"github.com/docscreen-io/docscreen/internal/repository"
)

// fakeProvider answers chat-completions requests with a canned content
// value per model name.
type fakeProvider struct {
	mu       sync.Mutex
	contents map[string]string // model -> content JSON (already encoded)
	requests []map[string]any
}

func (f *fakeProvider) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.requests = append(f.requests, body)
		content := f.contents[body["model"].(string)]
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":` + content + `}}]}`))
	})
}

func stageCfg(baseURL, model string) common.StageModelConfig {
	return common.StageModelConfig{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Model:   model,
		Timeout: 5 * time.Second,
	}
}

func newTestRunner(t *testing.T, provider *fakeProvider) (*Runner, *ingest.Store, repository.JobStore) {
	t.Helper()
	srv := httptest.NewServer(provider.handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	uploads, err := ingest.NewStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	store := repository.NewMemoryStore()
	models := common.ModelsConfig{
		VLM:    stageCfg(srv.URL, "vlm-model"),
		NER1:   stageCfg(srv.URL, "ner1-model"),
		NER2:   stageCfg(srv.URL, "ner2-model"),
		Review: stageCfg(srv.URL, "review-model"),
	}
	runner := NewRunner(NewClient(nil, nil), models, store, uploads, nil)
	return runner, uploads, store
}

func seedPipeline(t *testing.T, store repository.JobStore, inputRef string, completed map[int]string) (*entity.Job, map[int]*entity.Task) {
	t.Helper()
	ctx := context.Background()
	job := &entity.Job{
		ID:           uuid.New(),
		WorkflowName: constants.WorkflowName,
		InputSource:  inputRef,
		Status:       constants.JobStatusRunning,
		StartTime:    time.Now().UTC(),
	}
	types := map[int]constants.TaskType{
		1: constants.TaskTypeVLMExtraction,
		2: constants.TaskTypeNERProcessing,
		3: constants.TaskTypeNERProcessing,
		4: constants.TaskTypeJSONComparison,
		5: constants.TaskTypeVLMReview,
	}
	byOrder := make(map[int]*entity.Task, 5)
	tasks := make([]*entity.Task, 0, 5)
	for order := 1; order <= 5; order++ {
		task := &entity.Task{
			ID: uuid.New(), JobID: job.ID,
			TaskType: types[order], TaskOrder: order,
			Status: constants.TaskStatusPending, InputRef: inputRef,
		}
		byOrder[order] = task
		tasks = append(tasks, task)
	}
	if err := store.CreateJob(ctx, job, tasks); err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	for order, payload := range completed {
		if err := store.MarkTaskRunning(ctx, byOrder[order].ID, now); err != nil {
			t.Fatal(err)
		}
		if err := store.CompleteTask(ctx, byOrder[order].ID, json.RawMessage(payload), now); err != nil {
			t.Fatal(err)
		}
	}
	return job, byOrder
}

func TestRunExtractionFromTextUpload(t *testing.T) {
	provider := &fakeProvider{contents: map[string]string{
		"vlm-model": `"Name: John Doe\nDOB: 1990-01-01"`,
	}}
	runner, uploads, store := newTestRunner(t, provider)

	ref, err := uploads.Save("doc.txt", strings.NewReader("raw document body"))
	if err != nil {
		t.Fatal(err)
	}
	job, byOrder := seedPipeline(t, store, ref, nil)

	out, err := runner.Run(context.Background(), job, byOrder[1])
	if err != nil {
		t.Fatal(err)
	}
	var payload entity.ExtractionOutput
	if err := json.Unmarshal(out, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.OutputText != "Name: John Doe\nDOB: 1990-01-01" {
		t.Errorf("output_text = %q", payload.OutputText)
	}

	// The document body itself went into the prompt.
	provider.mu.Lock()
	defer provider.mu.Unlock()
	req := provider.requests[0]
	if !strings.Contains(string(mustJSON(t, req["messages"])), "raw document body") {
		t.Error("document text not sent to the model")
	}
}

func TestRunExtractionSendsImageAsDataURL(t *testing.T) {
	provider := &fakeProvider{contents: map[string]string{"vlm-model": `"transcribed"`}}
	runner, uploads, store := newTestRunner(t, provider)

	ref, err := uploads.Save("passport.png", bytes.NewReader([]byte{0x89, 0x50, 0x4e, 0x47}))
	if err != nil {
		t.Fatal(err)
	}
	job, byOrder := seedPipeline(t, store, ref, nil)

	if _, err := runner.Run(context.Background(), job, byOrder[1]); err != nil {
		t.Fatal(err)
	}

	provider.mu.Lock()
	defer provider.mu.Unlock()
	msgs := string(mustJSON(t, provider.requests[0]["messages"]))
	if !strings.Contains(msgs, "data:image/png;base64,") {
		t.Errorf("image not sent as data URL: %s", msgs)
	}
}

func TestRunNERUsesStageBoundModel(t *testing.T) {
	envelope := `"{\"entities\":[{\"entity_name\":\"Name\",\"entity_value\":\"John\"}]}"`
	provider := &fakeProvider{contents: map[string]string{
		"ner1-model": envelope,
		"ner2-model": envelope,
	}}
	runner, _, store := newTestRunner(t, provider)

	job, byOrder := seedPipeline(t, store, "doc.txt", map[int]string{
		1: `{"output_text":"Name: John"}`,
	})

	for _, order := range []int{2, 3} {
		out, err := runner.Run(context.Background(), job, byOrder[order])
		if err != nil {
			t.Fatal(err)
		}
		var payload entity.NEROutput
		if err := json.Unmarshal(out, &payload); err != nil {
			t.Fatal(err)
		}
		if len(payload.OutputJSON) == 0 {
			t.Errorf("order %d: empty output_json", order)
		}
	}

	provider.mu.Lock()
	defer provider.mu.Unlock()
	models := []string{
		provider.requests[0]["model"].(string),
		provider.requests[1]["model"].(string),
	}
	if models[0] != "ner1-model" || models[1] != "ner2-model" {
		t.Errorf("models = %v, want ner1-model then ner2-model", models)
	}
}

func TestRunComparisonDiffsNEROutputs(t *testing.T) {
	runner, _, store := newTestRunner(t, &fakeProvider{contents: map[string]string{}})

	nerPayload := func(content string) string {
		resp := `{"choices":[{"message":{"content":` + content + `}}]}`
		b, _ := json.Marshal(json.RawMessage(resp))
		return `{"output_json":` + string(b) + `}`
	}
	job, byOrder := seedPipeline(t, store, "doc.txt", map[int]string{
		2: nerPayload(`{"entities":[{"entity_name":"Name","entity_value":"John"},{"entity_name":"DOB","entity_value":"1990"}]}`),
		3: nerPayload(`{"entities":[{"entity_name":"Name","entity_value":"john"},{"entity_name":"ID","entity_value":"7"}]}`),
	})

	out, err := runner.Run(context.Background(), job, byOrder[4])
	if err != nil {
		t.Fatal(err)
	}
	var payload entity.ComparisonOutput
	if err := json.Unmarshal(out, &payload); err != nil {
		t.Fatal(err)
	}
	got := payload.OutputComparisonJSON.Entities
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	want := []string{entity.ComparisonMatch, entity.ComparisonAddition, entity.ComparisonOmission}
	for i, w := range want {
		if got[i].Comparison != w {
			t.Errorf("record %d = %s, want %s", i, got[i].Comparison, w)
		}
	}
}

func TestRunComparisonRejectsMalformedNEROutput(t *testing.T) {
	runner, _, store := newTestRunner(t, &fakeProvider{contents: map[string]string{}})

	wrongEnvelope := `{"output_json":{"choices":[{"message":{"content":{"items":[]}}}]}}`
	okEnvelope := `{"output_json":{"choices":[{"message":{"content":{"entities":[]}}}]}}`
	job, byOrder := seedPipeline(t, store, "doc.txt", map[int]string{
		2: wrongEnvelope,
		3: okEnvelope,
	})

	_, err := runner.Run(context.Background(), job, byOrder[4])
	if !errors.Is(err, common.ErrMalformedEntityData) {
		t.Fatalf("err = %v, want ErrMalformedEntityData", err)
	}
}

func TestRunComparisonRequiresCompletedDeps(t *testing.T) {
	runner, _, store := newTestRunner(t, &fakeProvider{contents: map[string]string{}})
	job, byOrder := seedPipeline(t, store, "doc.txt", map[int]string{
		2: `{"output_json":{"choices":[{"message":{"content":{"entities":[]}}}]}}`,
	})

	_, err := runner.Run(context.Background(), job, byOrder[4])
	if !errors.Is(err, common.ErrMissingDependency) {
		t.Fatalf("err = %v, want ErrMissingDependency", err)
	}
}

func TestRunReviewStoresRawResponse(t *testing.T) {
	provider := &fakeProvider{contents: map[string]string{
		"review-model": `{"entities":[{"entity_name":"DOB","entity_value":"1990","reviewed":"yes"}]}`,
	}}
	runner, _, store := newTestRunner(t, provider)

	job, byOrder := seedPipeline(t, store, "doc.txt", map[int]string{
		1: `{"output_text":"Name: John"}`,
	})

	out, err := runner.Run(context.Background(), job, byOrder[5])
	if err != nil {
		t.Fatal(err)
	}
	var payload entity.ReviewOutput
	if err := json.Unmarshal(out, &payload); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(payload.OutputReviewJSON), `"reviewed"`) {
		t.Errorf("output_review_json = %s", payload.OutputReviewJSON)
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}
