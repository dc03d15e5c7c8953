package api

import (
	"github.com/gin-gonic/gin"

	"github.com/xiaoyuanzhu-com/claude-deck/claude"
)

// Handlers bundles the registry behind the HTTP surface
type Handlers struct {
	registry *claude.Registry
}

func NewHandlers(registry *claude.Registry) *Handlers {
	return &Handlers{registry: registry}
}

// SetupRoutes registers all API routes
func SetupRoutes(r *gin.Engine, h *Handlers) {
	api := r.Group("/api")
	{
		api.GET("/state", h.GetState)
		api.GET("/events", h.EventsWebSocket)

		api.GET("/sessions", h.ListSessions)
		api.POST("/sessions", h.StartSession)
		api.GET("/sessions/:id/buffer", h.GetSessionBuffer)
		api.GET("/sessions/:id/terminal", h.TerminalWebSocket)
		api.POST("/sessions/:id/resume", h.ResumeSession)
		api.POST("/sessions/:id/fork", h.ForkSession)
		api.POST("/sessions/:id/stop", h.StopSession)
		api.POST("/sessions/:id/input", h.WriteSession)
		api.POST("/sessions/:id/resize", h.ResizeSession)
		api.PATCH("/sessions/:id/name", h.RenameSession)
		api.DELETE("/sessions/:id", h.DeleteSession)

		api.PUT("/active-session", h.SetActiveSession)

		api.GET("/projects", h.ListProjects)
		api.POST("/projects", h.AddProject)
		api.PATCH("/projects", h.UpdateProject)
		api.DELETE("/projects", h.RemoveProject)
	}
}
