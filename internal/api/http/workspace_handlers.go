package http

import (
	"encoding/json"
	"net/http"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/workspace"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"github.com/gin-gonic/gin"
)

type nameRequest struct {
	Name string `json:"name" binding:"required"`
}

type tabIDRequest struct {
	TabID string `json:"tab_id" binding:"required"`
}

type orderRequest struct {
	Order []string `json:"order" binding:"required"`
}

type gridRequest struct {
	GridLayout json.RawMessage `json:"grid_layout" binding:"required"`
}

// session resolves the :user session, bootstrapping it on first use
func (h *Handlers) session(c *gin.Context) (*workspace.Session, bool) {
	s, err := h.sessions.Get(c.Request.Context(), c.Param("user"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return s, true
}

// GetSnapshot returns the full workspace state
func (h *Handlers) GetSnapshot(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// EvictWorkspace flushes and closes the user's session
func (h *Handlers) EvictWorkspace(c *gin.Context) {
	user := c.Param("user")
	if err := h.sessions.Evict(c.Request.Context(), user); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

// GetSyncState reports remote tier reachability
func (h *Handlers) GetSyncState(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.SyncState())
}

// Flush writes the workspace through every tier now
func (h *Handlers) Flush(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Flush(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sync": s.SyncState()})
}

// ResetToDefault discards the working copy
func (h *Handlers) ResetToDefault(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.ResetToDefault(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "layout": s.Current()})
}

// GetCurrentLayout returns the working copy
func (h *Handlers) GetCurrentLayout(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"layout":        s.Current(),
		"active_tab_id": s.ActiveTabID(),
	})
}

// ListLayouts lists stored layouts
func (h *Handlers) ListLayouts(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"layouts": s.Layouts()})
}

// SaveCurrentLayout saves the working copy under a new name
func (h *Handlers) SaveCurrentLayout(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	saved, err := s.SaveCurrentLayout(req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "layout": saved})
}

// LoadLayout switches to a stored layout
func (h *Handlers) LoadLayout(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.LoadLayout(c.Param("layout")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "layout": s.Current()})
}

// DeleteLayout removes a user layout
func (h *Handlers) DeleteLayout(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	layoutID := c.Param("layout")
	if err := s.DeleteLayout(layoutID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "layout_id": layoutID})
}

// SetActiveTab foregrounds a tab
func (h *Handlers) SetActiveTab(c *gin.Context) {
	var req tabIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.SetActiveTab(req.TabID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "active_tab_id": s.ActiveTabID()})
}

// ReorderTabs applies a drag-reorder
func (h *Handlers) ReorderTabs(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.ReorderTabs(req.Order); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "layout": s.Current()})
}

// AddTab appends a tab
func (h *Handlers) AddTab(c *gin.Context) {
	var req workspace.TabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	tab, err := s.AddTab(req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "tab": tab})
}

// UpdateTab renames a tab or replaces its module
func (h *Handlers) UpdateTab(c *gin.Context) {
	var req workspace.TabUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	tab, err := s.UpdateTab(c.Param("tab"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tab": tab})
}

// RemoveTab closes a tab
func (h *Handlers) RemoveTab(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	tabID := c.Param("tab")
	if err := s.RemoveTab(tabID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tab_id": tabID})
}

// ToggleEditMode flips a tab's edit mode
func (h *Handlers) ToggleEditMode(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	tab, err := s.ToggleEditMode(c.Param("tab"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tab": tab})
}

// SetGridLayout stores a dynamic tab's grid geometry
func (h *Handlers) SetGridLayout(c *gin.Context) {
	var req gridRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	tab, err := s.SetGridLayout(c.Param("tab"), req.GridLayout)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tab": tab})
}

// AddSubComponent places a sub-component on a dynamic tab
func (h *Handlers) AddSubComponent(c *gin.Context) {
	var req types.SubComponent
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	sc, err := s.AddSubComponent(c.Param("tab"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "component": sc})
}

// UpdateSubComponent moves or reconfigures a sub-component
func (h *Handlers) UpdateSubComponent(c *gin.Context) {
	var req workspace.SubComponentUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	sc, err := s.UpdateSubComponent(c.Param("tab"), c.Param("component"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "component": sc})
}

// RemoveSubComponent deletes a sub-component
func (h *Handlers) RemoveSubComponent(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.RemoveSubComponent(c.Param("tab"), c.Param("component")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "component_id": c.Param("component")})
}

// GetResolution reports a tab's module loading state
func (h *Handlers) GetResolution(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	res, found := s.Resolution(c.Param("tab"))
	if !found {
		h.fail(c, workspace.ErrTabNotFound)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RetryModule restarts a tab's module resolution
func (h *Handlers) RetryModule(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	res, err := s.RetryModule(c.Request.Context(), c.Param("tab"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}

// RenderTab renders a tab's content through the isolation boundary.
// Module failures come back as an error view with status 200.
func (h *Handlers) RenderTab(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	view, err := s.Render(c.Request.Context(), c.Param("tab"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
