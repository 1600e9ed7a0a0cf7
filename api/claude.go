package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/damien-schneider/claude-code-desktop-sub001/claude"
	"github.com/damien-schneider/claude-code-desktop-sub001/claude/sdk"
	"github.com/damien-schneider/claude-code-desktop-sub001/db"
	"github.com/damien-schneider/claude-code-desktop-sub001/log"
)

const maxRunLimit = 500

// CheckAvailability handles GET /api/claude/availability
// ?refresh=1 drops the cached answer and probes again.
func (h *Handlers) CheckAvailability(c *gin.Context) {
	sessions := h.server.Sessions()
	var a claude.Availability
	if refresh, _ := strconv.ParseBool(c.Query("refresh")); refresh {
		a = sessions.RefreshAvailability(c.Request.Context())
	} else {
		a = sessions.CheckAvailability(c.Request.Context())
	}
	c.JSON(http.StatusOK, a)
}

// ListPermissionModes handles GET /api/claude/permission-modes
func (h *Handlers) ListPermissionModes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"modes": h.server.Sessions().PermissionModes()})
}

// StartSession handles POST /api/claude/sessions
func (h *Handlers) StartSession(c *gin.Context) {
	var body struct {
		ProjectPath string `json:"projectPath"`
		claude.StartOptions
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}

	res, err := h.server.Sessions().Start(c.Request.Context(), body.ProjectPath, body.StartOptions)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	h.server.Views().Track(res.ProcessID, body.ProjectPath, time.Now().UTC())
	c.JSON(http.StatusOK, res)
}

// ResumeSession handles POST /api/claude/sessions/resume
func (h *Handlers) ResumeSession(c *gin.Context) {
	var body struct {
		ProjectPath string `json:"projectPath"`
		SessionID   string `json:"sessionId"`
		claude.ResumeOptions
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}

	res, err := h.server.Sessions().Resume(c.Request.Context(), body.ProjectPath, body.SessionID, body.ResumeOptions)
	if err != nil {
		respondSessionError(c, err)
		return
	}
	h.server.Views().Track(res.ProcessID, body.ProjectPath, time.Now().UTC())
	c.JSON(http.StatusOK, res)
}

// ListSessionViews handles GET /api/claude/sessions/views
func (h *Handlers) ListSessionViews(c *gin.Context) {
	RespondList(c, h.server.Views().Views(), nil)
}

// ListActiveSessions handles GET /api/claude/processes
func (h *Handlers) ListActiveSessions(c *gin.Context) {
	list := h.server.Sessions().ListActive()
	if list.ProcessIDs == nil {
		list.ProcessIDs = []string{}
	}
	c.JSON(http.StatusOK, list)
}

// GetProcessState handles GET /api/claude/processes/:id/state
func (h *Handlers) GetProcessState(c *gin.Context) {
	state, ok := h.server.Views().State(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, ErrCodeProcessNotFound, "No state for this process", nil)
		return
	}
	RespondData(c, state)
}

// SendMessage handles POST /api/claude/processes/:id/messages
func (h *Handlers) SendMessage(c *gin.Context) {
	var body struct {
		Message     string `json:"message"`
		ProjectPath string `json:"projectPath"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}

	if err := h.server.Sessions().SendMessage(c.Param("id"), body.Message, body.ProjectPath); err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// InterruptSession handles POST /api/claude/processes/:id/interrupt
func (h *Handlers) InterruptSession(c *gin.Context) {
	if err := h.server.Sessions().Interrupt(c.Param("id")); err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SetPermissionMode handles POST /api/claude/processes/:id/permission-mode
func (h *Handlers) SetPermissionMode(c *gin.Context) {
	var body struct {
		Mode string `json:"mode"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}

	if err := h.server.Sessions().SetPermissionMode(c.Param("id"), body.Mode); err != nil {
		respondSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// StopSession handles POST /api/claude/processes/:id/stop
// Stopping is idempotent, so this always answers 200.
func (h *Handlers) StopSession(c *gin.Context) {
	c.JSON(http.StatusOK, h.server.Sessions().Stop(c.Param("id")))
}

// QueryOnce handles POST /api/claude/query
func (h *Handlers) QueryOnce(c *gin.Context) {
	var body struct {
		ProjectPath    string `json:"projectPath"`
		Prompt         string `json:"prompt"`
		PermissionMode string `json:"permissionMode"`
		Model          string `json:"model"`
		MaxTurns       int    `json:"maxTurns"`
		TimeoutMs      int    `json:"timeoutMs"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondBadRequest(c, "Invalid request body")
		return
	}

	res, err := h.server.Sessions().QueryOnce(c.Request.Context(), body.ProjectPath, body.Prompt, claude.QueryOptions{
		PermissionMode: body.PermissionMode,
		Model:          body.Model,
		MaxTurns:       body.MaxTurns,
		Timeout:        time.Duration(body.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		respondSessionError(c, err)
		return
	}
	RespondData(c, res)
}

// ListTranscripts handles GET /api/claude/transcripts?projectPath=
func (h *Handlers) ListTranscripts(c *gin.Context) {
	projectPath := c.Query("projectPath")
	if projectPath == "" {
		RespondValidationError(c, "projectPath is required", []ErrorDetail{
			{Field: "projectPath", Message: "required"},
		})
		return
	}

	ids, err := h.server.Sessions().Transcripts(projectPath)
	if err != nil {
		log.Error().Err(err).Str("projectPath", projectPath).Msg("failed to list transcripts")
		RespondInternalError(c, "Failed to list transcripts")
		return
	}
	RespondList(c, ids, nil)
}

// ListRuns handles GET /api/claude/runs?limit=
func (h *Handlers) ListRuns(c *gin.Context) {
	limit := db.DefaultRunLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			RespondValidationError(c, "limit must be a positive integer", []ErrorDetail{
				{Field: "limit", Message: "must be a positive integer"},
			})
			return
		}
		limit = min(n, maxRunLimit)
	}

	// One extra row tells whether there is more
	runs, err := h.server.Runs().ListRuns(c.Request.Context(), limit+1)
	if err != nil {
		log.Error().Err(err).Msg("failed to list runs")
		RespondInternalError(c, "Failed to list runs")
		return
	}
	hasMore := len(runs) > limit
	if hasMore {
		runs = runs[:limit]
	}
	RespondList(c, runs, &Pagination{Limit: limit, HasMore: hasMore})
}

// GetRun handles GET /api/claude/runs/:id
func (h *Handlers) GetRun(c *gin.Context) {
	run, err := h.server.Runs().GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		log.Error().Err(err).Str("processId", c.Param("id")).Msg("failed to read run")
		RespondInternalError(c, "Failed to read run")
		return
	}
	if run == nil {
		RespondNotFound(c, "Run not found")
		return
	}
	RespondData(c, run)
}

// respondSessionError maps orchestrator errors to HTTP answers
func respondSessionError(c *gin.Context, err error) {
	var notFound *claude.ExecutableNotFoundError
	var missing *claude.SessionFileNotFoundError

	switch {
	case errors.As(err, &notFound):
		respondError(c, http.StatusServiceUnavailable, ErrCodeExecutableNotFound, err.Error(), []ErrorDetail{
			{Field: "installHint", Message: notFound.InstallHint},
		})
	case errors.Is(err, claude.ErrExecutableNotFound):
		respondError(c, http.StatusServiceUnavailable, ErrCodeExecutableNotFound, err.Error(), []ErrorDetail{
			{Field: "installHint", Message: claude.InstallHint},
		})
	case errors.As(err, &missing):
		respondError(c, http.StatusNotFound, ErrCodeSessionFileNotFound, err.Error(), []ErrorDetail{
			{Field: "path", Message: missing.Path},
		})
	case errors.Is(err, claude.ErrProcessNotFound):
		respondError(c, http.StatusNotFound, ErrCodeProcessNotFound, err.Error(), nil)
	case errors.Is(err, claude.ErrProcessInactive):
		respondError(c, http.StatusConflict, ErrCodeProcessInactive, err.Error(), nil)
	case errors.Is(err, claude.ErrNotSupported):
		respondError(c, http.StatusConflict, ErrCodeConflict, err.Error(), nil)
	case errors.Is(err, claude.ErrInvalidRequest):
		RespondValidationError(c, err.Error(), nil)
	case errors.Is(err, sdk.ErrTimeout):
		respondError(c, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error(), nil)
	case errors.Is(err, claude.ErrShutdown):
		RespondServiceUnavailable(c, err.Error())
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("session operation failed")
		RespondInternalError(c, err.Error())
	}
}
