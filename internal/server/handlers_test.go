package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/docscreen-io/docscreen/constants"
	"github.com/docscreen-io/docscreen/internal/entity"
	"github.com/docscreen-io/docscreen/internal/export"
	"github.com/docscreen-io/docscreen/internal/ingest"
	"github.com/docscreen-io/docscreen/internal/orchestrator"
	"github.com/docscreen-io/docscreen/internal/repository"
	"github.com/docscreen-io/docscreen/internal/review"
	"github.com/docscreen-io/docscreen/internal/server"
)

// noopDispatcher leaves claimed tasks in running so tests drive
// completions explicitly through the orchestrator.
type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, *entity.Job, *entity.Task) {}

var _ = Describe("API", func() {
	var (
		router *gin.Engine
		store  repository.JobStore
		orch   *orchestrator.Orchestrator
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		store = repository.NewMemoryStore()
		orch = orchestrator.New(store, nil)
		orch.SetDispatcher(noopDispatcher{})

		uploads, err := ingest.NewStore(GinkgoT().TempDir(), nil)
		Expect(err).NotTo(HaveOccurred())
		orch.SetInputResolver(uploads)

		reviewSvc := review.NewService(store, nil)
		exportSvc := export.NewService(reviewSvc, nil)

		router = gin.New()
		jobs := server.NewJobHandler(orch, uploads, reviewSvc, exportSvc, 1<<20)
		tasks := server.NewTaskHandler(store, uploads)
		server.SetupRoutes(router, jobs, tasks, store)
	})

	postDocument := func(filename, content string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, err := mw.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write([]byte(content))
		Expect(err).NotTo(HaveOccurred())
		Expect(mw.Close()).To(Succeed())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	getJSON := func(path string, out any) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if out != nil && w.Code == http.StatusOK {
			Expect(json.Unmarshal(w.Body.Bytes(), out)).To(Succeed())
		}
		return w
	}

	createJob := func() (uuid.UUID, server.JobStatusResponse) {
		w := postDocument("doc.txt", "Name: John Doe")
		Expect(w.Code).To(Equal(http.StatusAccepted))
		var created server.JobCreatedResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &created)).To(Succeed())

		var status server.JobStatusResponse
		sw := getJSON(fmt.Sprintf("/api/v1/jobs/%s/status", created.JobID), &status)
		Expect(sw.Code).To(Equal(http.StatusOK))
		return created.JobID, status
	}

	taskID := func(status server.JobStatusResponse, order int) uuid.UUID {
		for _, t := range status.Tasks {
			if t.TaskOrder == order {
				return t.TaskID
			}
		}
		Fail(fmt.Sprintf("no task at order %d", order))
		return uuid.Nil
	}

	Describe("POST /api/v1/jobs", func() {
		It("accepts an upload and creates the five-stage job", func() {
			w := postDocument("doc.txt", "Name: John Doe")
			Expect(w.Code).To(Equal(http.StatusAccepted))

			var created server.JobCreatedResponse
			Expect(json.Unmarshal(w.Body.Bytes(), &created)).To(Succeed())
			Expect(created.JobID).NotTo(Equal(uuid.Nil))
			Expect(created.UploadedFilename).To(Equal("doc.txt"))

			var status server.JobStatusResponse
			sw := getJSON(fmt.Sprintf("/api/v1/jobs/%s/status", created.JobID), &status)
			Expect(sw.Code).To(Equal(http.StatusOK))
			Expect(status.Tasks).To(HaveLen(5))
			Expect(status.JobStatus).To(Equal("running"))
			Expect(status.WorkflowName).To(Equal(constants.WorkflowName))
		})

		It("accepts a remote URL instead of an upload", func() {
			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			Expect(mw.WriteField("input_url", "https://example.com/passport.jpg")).To(Succeed())
			Expect(mw.Close()).To(Succeed())

			req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", &body)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusAccepted))
		})

		It("rejects a request with neither file nor URL", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(""))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/v1/jobs/:job_id/status", func() {
		It("returns 404 for an unknown job", func() {
			w := getJSON(fmt.Sprintf("/api/v1/jobs/%s/status", uuid.New()), nil)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})

		It("returns 400 for a malformed id", func() {
			w := getJSON("/api/v1/jobs/not-a-uuid/status", nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/v1/tasks/:task_id/output", func() {
		It("answers 409 while the task has not completed", func() {
			_, status := createJob()
			w := getJSON(fmt.Sprintf("/api/v1/tasks/%s/output", taskID(status, 1)), nil)
			Expect(w.Code).To(Equal(http.StatusConflict))
		})

		It("serves the stored payload verbatim once completed", func() {
			_, status := createJob()
			extraction := taskID(status, 1)
			Expect(orch.AdvanceTask(context.Background(), extraction, json.RawMessage(`{"output_text":"Name: John Doe"}`))).To(Succeed())

			w := getJSON(fmt.Sprintf("/api/v1/tasks/%s/output", extraction), nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(MatchJSON(`{"output_text":"Name: John Doe"}`))
		})

		It("returns 404 for an unknown task", func() {
			w := getJSON(fmt.Sprintf("/api/v1/tasks/%s/output", uuid.New()), nil)
			Expect(w.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /api/v1/tasks/:task_id/input_content", func() {
		It("serves text uploads as text", func() {
			_, status := createJob()
			var content ingest.InputContent
			w := getJSON(fmt.Sprintf("/api/v1/tasks/%s/input_content", taskID(status, 1)), &content)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(content.ContentType).To(Equal(constants.ContentTypeText))
			Expect(content.Text).To(Equal("Name: John Doe"))
		})
	})

	Describe("GET /api/v1/jobs/:job_id/review", func() {
		completePipeline := func() uuid.UUID {
			jobID, status := createJob()
			ctx := context.Background()
			Expect(orch.AdvanceTask(ctx, taskID(status, 1), json.RawMessage(`{"output_text":"doc"}`))).To(Succeed())
			Expect(orch.AdvanceTask(ctx, taskID(status, 2), json.RawMessage(`{"output_json":{}}`))).To(Succeed())
			Expect(orch.AdvanceTask(ctx, taskID(status, 3), json.RawMessage(`{"output_json":{}}`))).To(Succeed())
			Expect(orch.AdvanceTask(ctx, taskID(status, 4), json.RawMessage(`{"output_comparison_json":{"entities":[
				{"entity_name":"Name","entity_value":"John","comparison":"match"},
				{"entity_name":"DOB","entity_value":"1990","comparison":"addition"}
			]}}`))).To(Succeed())
			Expect(orch.AdvanceTask(ctx, taskID(status, 5), json.RawMessage(`{"output_review_json":{"entities":[
				{"entity_name":"DOB","entity_value":"1990","reviewed":"yes"}
			]}}`))).To(Succeed())
			return jobID
		}

		It("answers 409 until comparison and review completed", func() {
			jobID, _ := createJob()
			w := getJSON(fmt.Sprintf("/api/v1/jobs/%s/review", jobID), nil)
			Expect(w.Code).To(Equal(http.StatusConflict))
		})

		It("returns the reconciled table once the job finished", func() {
			jobID := completePipeline()

			var table server.ReviewTableResponse
			w := getJSON(fmt.Sprintf("/api/v1/jobs/%s/review", jobID), &table)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(table.Entities).To(HaveLen(2))
			Expect(table.Entities[0].Reviewed).To(Equal(entity.ReviewedNA))
			Expect(table.Entities[1].Reviewed).To(Equal(entity.ReviewedYes))
		})

		It("exports the same table as an XLSX attachment", func() {
			jobID := completePipeline()

			req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/export", jobID), nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Disposition")).To(ContainSubstring(".xlsx"))
			Expect(w.Body.Len()).To(BeNumerically(">", 0))
		})
	})

	Describe("GET /healthz", func() {
		It("reports ok while the store answers", func() {
			w := getJSON("/healthz", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
		})
	})
})
