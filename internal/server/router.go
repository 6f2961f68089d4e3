package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docscreen-io/docscreen/internal/repository"
)

// SetupRoutes mounts the API surface on the engine.
func SetupRoutes(router *gin.Engine, jobs *JobHandler, tasks *TaskHandler, store repository.JobStore) {
	router.GET("/healthz", func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/jobs", jobs.Create)
		v1.GET("/jobs/:job_id/status", jobs.Status)
		v1.GET("/jobs/:job_id/review", jobs.Review)
		v1.GET("/jobs/:job_id/export", jobs.Export)

		v1.GET("/tasks/:task_id/output", tasks.Output)
		v1.GET("/tasks/:task_id/input_content", tasks.InputContent)
	}
}
