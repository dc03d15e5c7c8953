package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListProjects returns all registered projects
func (h *Handlers) ListProjects(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"projects": h.registry.GetState().Projects})
}

type projectRequest struct {
	Path string `json:"path" binding:"required"`
}

// AddProject registers a working directory for display grouping
func (h *Handlers) AddProject(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.registry.AddProject(req.Path); err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ok": true})
}

// RemoveProject unregisters a project. Fails while any session still uses
// the path as its working directory.
func (h *Handlers) RemoveProject(c *gin.Context) {
	var req projectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.registry.RemoveProject(req.Path); err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type updateProjectRequest struct {
	Path                  string  `json:"path" binding:"required"`
	Collapsed             *bool   `json:"collapsed"`
	DefaultModel          *string `json:"defaultModel"`
	DefaultPermissionMode *string `json:"defaultPermissionMode"`
}

// UpdateProject applies partial updates to a project's display and launch
// defaults.
func (h *Handlers) UpdateProject(c *gin.Context) {
	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.registry.UpdateProject(req.Path, req.Collapsed, req.DefaultModel, req.DefaultPermissionMode); err != nil {
		writeRegistryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
