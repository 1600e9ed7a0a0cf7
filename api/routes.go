package api

import (
	"github.com/gin-gonic/gin"
)

// Streaming endpoints; the router must not buffer or compress them
const (
	EventsWebSocketPath = "/api/claude/events"
	EventsStreamPath    = "/api/claude/events/stream"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *gin.Engine, h *Handlers) {
	api := r.Group("/api")

	cl := api.Group("/claude")

	// CLI discovery
	cl.GET("/availability", h.CheckAvailability)
	cl.GET("/permission-modes", h.ListPermissionModes)

	// Session lifecycle
	cl.POST("/sessions", h.StartSession)
	cl.POST("/sessions/resume", h.ResumeSession)
	cl.GET("/sessions/views", h.ListSessionViews)

	// Live processes
	cl.GET("/processes", h.ListActiveSessions)
	cl.GET("/processes/:id/state", h.GetProcessState)
	cl.POST("/processes/:id/messages", h.SendMessage)
	cl.POST("/processes/:id/interrupt", h.InterruptSession)
	cl.POST("/processes/:id/permission-mode", h.SetPermissionMode)
	cl.POST("/processes/:id/stop", h.StopSession)

	// One-shot queries and history
	cl.POST("/query", h.QueryOnce)
	cl.GET("/transcripts", h.ListTranscripts)
	cl.GET("/runs", h.ListRuns)
	cl.GET("/runs/:id", h.GetRun)

	// Event bridge
	r.GET(EventsWebSocketPath, h.EventsWebSocket)
	r.GET(EventsStreamPath, h.EventsStream)
}
