package http

import (
	"net/http"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/registry"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/workspace"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/monitoring"
	"github.com/gin-gonic/gin"
)

// Handlers contains the workspace API handlers
type Handlers struct {
	sessions *workspace.Manager
	registry *registry.Manager
	metrics  *monitoring.Metrics
	log      *logging.Logger
}

// NewHandlers creates a new handler set
func NewHandlers(
	sessions *workspace.Manager,
	registry *registry.Manager,
	metrics *monitoring.Metrics,
	log *logging.Logger,
) *Handlers {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handlers{
		sessions: sessions,
		registry: registry,
		metrics:  metrics,
		log:      log.Named("http"),
	}
}

// Register mounts the workspace API on r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/metrics/json", h.MetricsJSON)

	// Component registry
	r.GET("/modules", h.ListModules)
	r.GET("/modules/:id", h.GetModule)

	ws := r.Group("/workspaces")
	ws.GET("", h.ListWorkspaces)

	user := ws.Group("/:user")
	user.GET("", h.GetSnapshot)
	user.DELETE("", h.EvictWorkspace)
	user.GET("/sync", h.GetSyncState)
	user.POST("/flush", h.Flush)
	user.POST("/reset", h.ResetToDefault)

	// Layouts
	user.GET("/layout", h.GetCurrentLayout)
	user.GET("/layouts", h.ListLayouts)
	user.POST("/layouts", h.SaveCurrentLayout)
	user.POST("/layouts/:layout/load", h.LoadLayout)
	user.DELETE("/layouts/:layout", h.DeleteLayout)

	// Tabs
	user.PUT("/active-tab", h.SetActiveTab)
	user.PUT("/tab-order", h.ReorderTabs)
	user.POST("/tabs", h.AddTab)
	user.PATCH("/tabs/:tab", h.UpdateTab)
	user.DELETE("/tabs/:tab", h.RemoveTab)
	user.POST("/tabs/:tab/edit-mode", h.ToggleEditMode)
	user.PUT("/tabs/:tab/grid", h.SetGridLayout)

	// Sub-components of dynamic tabs
	user.POST("/tabs/:tab/components", h.AddSubComponent)
	user.PATCH("/tabs/:tab/components/:component", h.UpdateSubComponent)
	user.DELETE("/tabs/:tab/components/:component", h.RemoveSubComponent)

	// Module loader
	user.GET("/tabs/:tab/module", h.GetResolution)
	user.POST("/tabs/:tab/module/retry", h.RetryModule)
	user.GET("/tabs/:tab/view", h.RenderTab)
}

// Root handles the service banner
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "workspace",
		"version": "1.0.0",
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"sessions": len(h.sessions.Users()),
		"registry": h.registry.Stats(),
	})
}

// MetricsJSON returns the aggregated metrics snapshot
func (h *Handlers) MetricsJSON(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "metrics disabled"})
		return
	}
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

// ListModules lists the registered modules
func (h *Handlers) ListModules(c *gin.Context) {
	modules := h.registry.List()
	c.JSON(http.StatusOK, gin.H{
		"modules": modules,
		"stats":   h.registry.Stats(),
	})
}

// GetModule returns one module's metadata
func (h *Handlers) GetModule(c *gin.Context) {
	entry, ok := h.registry.Lookup(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "module not registered"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "module": entry.Metadata})
}

// ListWorkspaces lists users with a live session
func (h *Handlers) ListWorkspaces(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": h.sessions.Users()})
}
