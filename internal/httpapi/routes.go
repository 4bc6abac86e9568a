package httpapi

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/flowgate/engine/internal/infrastructure/logger"
)

// NewRouter builds the gin engine for the given Handlers, wiring recovery,
// request logging, and gzip the way the teacher's setupRoutes does
// (backend/pkg/server/routes.go), trimmed to the routes this engine
// actually serves.
func NewRouter(h *Handlers, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(Recovery(log))
	router.Use(RequestLogger(log))
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	apiV1 := router.Group("/api/v1")
	{
		workflows := apiV1.Group("/workflows")
		workflows.POST("/:name/executions", h.HandleExecuteWorkflow)
		workflows.GET("/:name/executions", h.HandleListExecutions)
		workflows.GET("/:name/optimizations", h.HandleListOptimizations)
		workflows.GET("/:name/graph", h.HandleWorkflowGraph)

		apiV1.GET("/executions/:id/trace", h.HandleBuildTrace)

		apiV1.POST("/hooks/*suffix", h.HandleWebhook)
	}

	return router
}
