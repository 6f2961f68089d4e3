package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/docscreen-io/docscreen/constants"
	"github.com/docscreen-io/docscreen/internal/common"
	"github.com/docscreen-io/docscreen/internal/ingest"
	"github.com/docscreen-io/docscreen/internal/repository"
)

type TaskHandler struct {
	store   repository.JobStore
	uploads *ingest.Store
}

func NewTaskHandler(store repository.JobStore, uploads *ingest.Store) *TaskHandler {
	return &TaskHandler{store: store, uploads: uploads}
}

// Output serves the stored stage payload verbatim. The payload key differs
// per stage (output_text, output_json, output_comparison_json,
// output_review_json); the stored document already carries it.
func (h *TaskHandler) Output(c *gin.Context) {
	ctx := c.Request.Context()

	taskID, err := uuid.Parse(c.Param("task_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	task, err := h.store.GetTask(ctx, taskID)
	if err != nil {
		c.JSON(common.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	if task.Status != constants.TaskStatusCompleted {
		err := common.WrapError(common.ErrMissingDependency, "task is "+string(task.Status))
		c.JSON(common.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", task.Output)
}

// InputContent serves the task's input document preview: base64 for
// images and PDFs, the URL for remote inputs, raw text otherwise.
func (h *TaskHandler) InputContent(c *gin.Context) {
	ctx := c.Request.Context()

	taskID, err := uuid.Parse(c.Param("task_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task id"})
		return
	}
	task, err := h.store.GetTask(ctx, taskID)
	if err != nil {
		c.JSON(common.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	content, err := h.uploads.InputContent(task.InputRef)
	if err != nil {
		c.JSON(common.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, content)
}
