package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/theoneeye/oneeye/cmd/oneeye/handlers"
)

// RegisterWebhookRoutes registers the webhook trigger surface
func RegisterWebhookRoutes(e *echo.Echo, h *handlers.WebhookHandler) {
	e.POST("/api/webhooks/:id", h.Trigger)
}

// RegisterWorkflowRoutes registers workflow CRUD and lifecycle routes
func RegisterWorkflowRoutes(e *echo.Echo, h *handlers.WorkflowHandler, s *handlers.StreamHandler) {
	wf := e.Group("/api/v1/workflows")
	{
		wf.POST("", h.Create)                             // POST   /api/v1/workflows
		wf.GET("", h.List)                                // GET    /api/v1/workflows
		wf.GET("/:id", h.Get)                             // GET    /api/v1/workflows/:id
		wf.PATCH("/:id", h.Patch)                         // PATCH  /api/v1/workflows/:id
		wf.DELETE("/:id", h.Delete)                       // DELETE /api/v1/workflows/:id
		wf.POST("/:id/start", h.Start)                    // POST   /api/v1/workflows/:id/start
		wf.POST("/:id/stop", h.Stop)                      // POST   /api/v1/workflows/:id/stop
		wf.POST("/:id/force-stop", h.ForceStop)           // POST   /api/v1/workflows/:id/force-stop
		wf.GET("/:id/status", h.Status)                   // GET    /api/v1/workflows/:id/status
		wf.POST("/:id/nodes/:nodeID/execute", h.ExecuteNode)
		wf.GET("/:id/stream", s.Stream)                   // GET    /api/v1/workflows/:id/stream
	}
}
