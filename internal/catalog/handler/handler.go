package handler

import (
	"salesflow_backend/internal/catalog/service"
	"salesflow_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Handler exposes the read-only catalog over HTTP.
type Handler struct {
	svc *service.Service
}

// New creates a new catalog handler.
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// GetSnapshot returns the whole catalog.
// GET /api/v1/catalog/snapshot
func (h *Handler) GetSnapshot(c *gin.Context) {
	snap, err := h.svc.Snapshot(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, snap)
}

// GetPipeline returns the ordered pipeline stages.
// GET /api/v1/catalog/pipeline
func (h *Handler) GetPipeline(c *gin.Context) {
	stages, err := h.svc.Pipeline(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"stages": stages})
}
