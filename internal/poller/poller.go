// Package poller follows a submitted job from the client side: it polls
// the status endpoint, fetches each task's output exactly once as it
// completes, and stops when the job reaches a terminal state.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docscreen-io/docscreen/constants"
	"github.com/docscreen-io/docscreen/internal/common"
)

const maxConsecutiveFailures = 3

// TaskView mirrors one task row of the status response.
type TaskView struct {
	TaskID       uuid.UUID `json:"task_id"`
	TaskType     string    `json:"task_type"`
	TaskOrder    int       `json:"task_order"`
	Status       string    `json:"status"`
	ErrorMessage *string   `json:"error_message,omitempty"`
}

// StatusView mirrors the job status response.
type StatusView struct {
	JobID        uuid.UUID  `json:"job_id"`
	JobStatus    string     `json:"job_status"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	Tasks        []TaskView `json:"tasks"`
}

// TaskResult pairs a completed task with its fetched output payload.
type TaskResult struct {
	Task   TaskView
	Output json.RawMessage
}

// JobContext carries the per-job poll state: which task outputs were
// already fetched and how many polls failed in a row. One JobContext
// follows one job; it is not safe for concurrent use.
type JobContext struct {
	JobID    uuid.UUID
	fetched  map[uuid.UUID]struct{}
	failures int
}

func NewJobContext(jobID uuid.UUID) *JobContext {
	return &JobContext{JobID: jobID, fetched: make(map[uuid.UUID]struct{})}
}

// Poller polls one server for job progress.
type Poller struct {
	baseURL    string
	httpClient *http.Client
	interval   time.Duration
	log        *slog.Logger
}

func New(baseURL string, httpClient *http.Client, interval time.Duration, logger *slog.Logger) *Poller {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		interval:   interval,
		log:        logger,
	}
}

// Follow polls until the job is terminal, reporting each newly completed
// task's output through onResult. It returns the final status, or an error
// wrapping ErrUnreachable after three consecutive failed polls.
func (p *Poller) Follow(ctx context.Context, jc *JobContext, onResult func(TaskResult)) (*StatusView, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		status, err := p.PollOnce(ctx, jc, onResult)
		if err != nil {
			return nil, err
		}
		if status != nil && constants.JobStatus(status.JobStatus).Terminal() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// PollOnce performs a single poll cycle. A transport failure counts toward
// the consecutive-failure budget and returns a nil status; any successful
// poll resets the budget.
func (p *Poller) PollOnce(ctx context.Context, jc *JobContext, onResult func(TaskResult)) (*StatusView, error) {
	status, err := p.fetchStatus(ctx, jc.JobID)
	if err != nil {
		jc.failures++
		p.log.Warn("status poll failed", "job_id", jc.JobID, "attempt", jc.failures, "error", err)
		if jc.failures >= maxConsecutiveFailures {
			return nil, common.WrapError(common.ErrUnreachable,
				fmt.Sprintf("job %s unreachable after %d polls", jc.JobID, jc.failures))
		}
		return nil, nil
	}
	jc.failures = 0

	for _, t := range status.Tasks {
		if t.Status != string(constants.TaskStatusCompleted) {
			continue
		}
		if _, done := jc.fetched[t.TaskID]; done {
			continue
		}
		output, err := p.fetchOutput(ctx, t.TaskID)
		if err != nil {
			p.log.Warn("output fetch failed", "task_id", t.TaskID, "error", err)
			continue // retried on the next poll; not marked fetched
		}
		jc.fetched[t.TaskID] = struct{}{}
		if onResult != nil {
			onResult(TaskResult{Task: t, Output: output})
		}
	}
	return status, nil
}

func (p *Poller) fetchStatus(ctx context.Context, jobID uuid.UUID) (*StatusView, error) {
	raw, err := p.get(ctx, fmt.Sprintf("%s/api/v1/jobs/%s/status", p.baseURL, jobID))
	if err != nil {
		return nil, err
	}
	var status StatusView
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &status, nil
}

func (p *Poller) fetchOutput(ctx context.Context, taskID uuid.UUID) (json.RawMessage, error) {
	return p.get(ctx, fmt.Sprintf("%s/api/v1/tasks/%s/output", p.baseURL, taskID))
}

func (p *Poller) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}
