package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xiaoyuanzhu-com/claude-deck/claude"
)

// GetState returns the full registry snapshot: sessions, projects and the
// active-session marker.
func (h *Handlers) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.GetState())
}

// ListSessions returns all session snapshots
func (h *Handlers) ListSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": h.registry.GetState().Sessions})
}

type startSessionRequest struct {
	WorkingDir     string `json:"cwd" binding:"required"`
	Name           string `json:"name"`
	Model          string `json:"model"`
	PermissionMode string `json:"permissionMode"`
	InitialPrompt  string `json:"initialPrompt"`
	Cols           uint16 `json:"cols"`
	Rows           uint16 `json:"rows"`
}

// StartSession launches a new Claude session
func (h *Handlers) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := h.registry.Start(claude.StartRequest{
		WorkingDir:     req.WorkingDir,
		Name:           req.Name,
		Model:          req.Model,
		PermissionMode: req.PermissionMode,
		InitialPrompt:  req.InitialPrompt,
		Cols:           req.Cols,
		Rows:           req.Rows,
	})
	if err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

type sizeRequest struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// ResumeSession relaunches a stopped session with its conversation intact.
// The body is optional; it may carry the current terminal size.
func (h *Handlers) ResumeSession(c *gin.Context) {
	var req sizeRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.registry.Resume(c.Param("id"), req.Cols, req.Rows); err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ForkSession branches a new session off an existing conversation.
// The body is optional; it may carry the current terminal size.
func (h *Handlers) ForkSession(c *gin.Context) {
	var req sizeRequest
	_ = c.ShouldBindJSON(&req)

	snap, err := h.registry.Fork(c.Param("id"), req.Cols, req.Rows)
	if err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

// StopSession gracefully stops a session's process
func (h *Handlers) StopSession(c *gin.Context) {
	if err := h.registry.Stop(c.Param("id")); err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DeleteSession removes a session, its process and its state log
func (h *Handlers) DeleteSession(c *gin.Context) {
	if err := h.registry.Delete(c.Param("id")); err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type writeRequest struct {
	Data string `json:"data" binding:"required"`
}

// WriteSession forwards terminal input to a session
func (h *Handlers) WriteSession(c *gin.Context) {
	var req writeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.registry.Write(c.Param("id"), req.Data); err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ResizeSession updates a session's PTY window size
func (h *Handlers) ResizeSession(c *gin.Context) {
	var req sizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.registry.Resize(c.Param("id"), req.Cols, req.Rows); err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type renameRequest struct {
	Name string `json:"name" binding:"required"`
}

// RenameSession sets a session's display name
func (h *Handlers) RenameSession(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.registry.Rename(c.Param("id"), req.Name); err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GetSessionBuffer returns the retained terminal output for replay
func (h *Handlers) GetSessionBuffer(c *gin.Context) {
	sess, err := h.registry.GetSession(c.Param("id"))
	if err != nil {
		writeRegistryError(c, err)
		return
	}
	content := sess.BufferContents()
	c.JSON(http.StatusOK, gin.H{"content": content, "length": len(content)})
}

type setActiveRequest struct {
	SessionID string `json:"sessionId"`
}

// SetActiveSession moves the active-session marker; an empty id clears it
func (h *Handlers) SetActiveSession(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.registry.SetActive(req.SessionID); err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// writeRegistryError maps registry errors onto HTTP statuses
func writeRegistryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, claude.ErrSessionNotFound), errors.Is(err, claude.ErrProjectNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, claude.ErrInvalidWorkingDir), errors.Is(err, claude.ErrProjectInUse):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
