// Package server exposes the screening pipeline over HTTP.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docscreen-io/docscreen/internal/common"
	"github.com/docscreen-io/docscreen/internal/export"
	"github.com/docscreen-io/docscreen/internal/ingest"
	"github.com/docscreen-io/docscreen/internal/orchestrator"
	"github.com/docscreen-io/docscreen/internal/review"
)

type JobHandler struct {
	orch      *orchestrator.Orchestrator
	uploads   *ingest.Store
	reviewSvc *review.Service
	exportSvc *export.Service
	maxUpload int64 // bytes
}

func NewJobHandler(orch *orchestrator.Orchestrator, uploads *ingest.Store, reviewSvc *review.Service, exportSvc *export.Service, maxUploadBytes int64) *JobHandler {
	return &JobHandler{
		orch:      orch,
		uploads:   uploads,
		reviewSvc: reviewSvc,
		exportSvc: exportSvc,
		maxUpload: maxUploadBytes,
	}
}

// Create accepts a multipart "file" upload or an "input_url" form value and
// starts a screening job for it.
func (h *JobHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	inputRef, uploadedName, err := h.resolveInput(c)
	if err != nil {
		slog.WarnContext(ctx, "job create rejected", "error", err)
		c.JSON(common.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	job, err := h.orch.CreateJob(ctx, inputRef)
	if err != nil {
		slog.ErrorContext(ctx, "job create failed", "error", err)
		c.JSON(common.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, JobCreatedResponse{
		JobID:            job.ID,
		UploadedFilename: uploadedName,
	})
}

func (h *JobHandler) resolveInput(c *gin.Context) (ref, uploadedName string, err error) {
	if url := c.PostForm("input_url"); url != "" {
		return url, url, nil
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return "", "", common.WrapError(common.ErrInvalidInput, "provide a file upload or input_url")
	}
	if h.maxUpload > 0 && fh.Size > h.maxUpload {
		return "", "", common.WrapError(common.ErrInvalidInput, "upload exceeds size limit")
	}
	src, err := fh.Open()
	if err != nil {
		return "", "", common.WrapError(common.ErrInvalidInput, "unreadable upload")
	}
	defer src.Close()
	stored, err := h.uploads.Save(fh.Filename, src)
	if err != nil {
		return "", "", err
	}
	return stored, fh.Filename, nil
}

// Status returns the job document with the status of all its tasks.
func (h *JobHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	job, tasks, err := h.orch.JobStatus(ctx, jobID)
	if err != nil {
		c.JSON(common.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toJobStatusResponse(job, tasks))
}

// Review returns the reconciled review table. It answers 409 until both
// the comparison and review stages completed.
func (h *JobHandler) Review(c *gin.Context) {
	ctx := c.Request.Context()

	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	records, err := h.reviewSvc.Table(ctx, jobID)
	if err != nil {
		c.JSON(common.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ReviewTableResponse{JobID: jobID, Entities: records})
}

// Export streams the review table as an XLSX workbook.
func (h *JobHandler) Export(c *gin.Context) {
	ctx := c.Request.Context()

	jobID, err := uuid.Parse(c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	data, err := h.exportSvc.ExportReviewXLSX(ctx, jobID)
	if err != nil {
		c.JSON(common.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="review_`+jobID.String()+`.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
