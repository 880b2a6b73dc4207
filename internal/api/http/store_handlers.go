package http

import (
	"fmt"
	"net/http"

	"github.com/GriffinCanCode/AgentOS/workspace/internal/domain/layout"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/shared/utils"
	"github.com/GriffinCanCode/AgentOS/workspace/internal/storage/remote"
	"github.com/gin-gonic/gin"
)

// StoreHandlers serve a remote.Backend over HTTP; remote.Client is their counterpart
type StoreHandlers struct {
	backend remote.Backend
	log     *logging.Logger
}

// NewStoreHandlers creates the remote store API
func NewStoreHandlers(backend remote.Backend, log *logging.Logger) *StoreHandlers {
	if log == nil {
		log = logging.NewNop()
	}
	return &StoreHandlers{backend: backend, log: log.Named("store")}
}

// Register mounts the store API on r
func (h *StoreHandlers) Register(r gin.IRouter) {
	users := r.Group("/store/users/:user", h.validateUser)
	users.GET("", h.GetUser)
	users.GET("/layouts", h.ListLayouts)
	users.PUT("/layouts/:id", h.PutLayout)
	users.DELETE("/layouts/:id", h.DeleteLayout)
	users.GET("/pointer", h.GetPointer)
	users.PUT("/pointer", h.PutPointer)
}

func (h *StoreHandlers) validateUser(c *gin.Context) {
	if err := utils.ValidateUserID(c.Param("user")); err != nil {
		badRequest(c, err)
		c.Abort()
		return
	}
	c.Next()
}

// GetUser returns the user's layouts, 404 for an unknown user
func (h *StoreHandlers) GetUser(c *gin.Context) {
	layouts, err := h.backend.Get(c.Request.Context(), c.Param("user"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, remote.LayoutsPayload{Layouts: layouts})
}

// ListLayouts returns the user's layouts, empty for an unknown user
func (h *StoreHandlers) ListLayouts(c *gin.Context) {
	layouts, err := h.backend.List(c.Request.Context(), c.Param("user"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if layouts == nil {
		layouts = []types.Layout{}
	}
	c.JSON(http.StatusOK, remote.LayoutsPayload{Layouts: layouts})
}

// PutLayout stores a layout; an older write than the stored copy gets 409
func (h *StoreHandlers) PutLayout(c *gin.Context) {
	var l types.Layout
	if err := c.ShouldBindJSON(&l); err != nil {
		badRequest(c, err)
		return
	}
	if l.ID != c.Param("id") {
		badRequest(c, fmt.Errorf("layout id %q does not match path", l.ID))
		return
	}
	if err := layout.ValidateLayout(&l); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.backend.Put(c.Request.Context(), c.Param("user"), l); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "layout_id": l.ID})
}

// DeleteLayout removes a layout; missing layouts are not an error
func (h *StoreHandlers) DeleteLayout(c *gin.Context) {
	if err := h.backend.Delete(c.Request.Context(), c.Param("user"), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "layout_id": c.Param("id")})
}

// GetPointer returns the active/default pointer, 404 when unset
func (h *StoreHandlers) GetPointer(c *gin.Context) {
	pointer, err := h.backend.GetPointer(c.Request.Context(), c.Param("user"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, pointer)
}

// PutPointer stores the pointer; an older write gets 409
func (h *StoreHandlers) PutPointer(c *gin.Context) {
	var pointer types.Pointer
	if err := c.ShouldBindJSON(&pointer); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.backend.PutPointer(c.Request.Context(), c.Param("user"), pointer); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
