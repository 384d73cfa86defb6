package handler

import (
	"net/http"

	"salesflow_backend/internal/deals/management"
	"salesflow_backend/internal/deals/transport"
	"salesflow_backend/platform/httpkit"
	"salesflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *management.Service
	val *validator.Validator
}

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

func New(svc *management.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes mounts deal routes. limiter, when non-nil, guards the
// endpoint that calls the language model.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, limiter gin.HandlerFunc) {
	rg.POST("", h.Start)
	rg.GET("", h.List)
	rg.GET("/board", h.Board)
	rg.GET("/:id", h.GetByID)
	rg.PATCH("/:id", h.Update)
	rg.DELETE("/:id", h.Delete)
	if limiter != nil {
		rg.POST("/:id/messages", limiter, h.SendMessage)
	} else {
		rg.POST("/:id/messages", h.SendMessage)
	}
	rg.POST("/:id/stage", h.MoveStage)
}

func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return false
	}
	return true
}

// Start opens a sandbox conversation.
// POST /api/v1/deals
func (h *Handler) Start(c *gin.Context) {
	var req transport.StartConversationRequest
	if !h.bind(c, &req) {
		return
	}

	deal, err := h.svc.StartConversation(c.Request.Context(), req.CustomerName)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, deal)
}

func (h *Handler) List(c *gin.Context) {
	httpkit.OK(c, h.svc.List(c.Request.Context()))
}

// Board returns the kanban view.
// GET /api/v1/deals/board?q=&stagnant=
func (h *Handler) Board(c *gin.Context) {
	var query transport.BoardQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	board, err := h.svc.Board(c.Request.Context(), query)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, board)
}

func (h *Handler) GetByID(c *gin.Context) {
	deal, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, deal)
}

func (h *Handler) Update(c *gin.Context) {
	var req transport.UpdateDealRequest
	if !h.bind(c, &req) {
		return
	}

	deal, err := h.svc.UpdateDeal(c.Request.Context(), c.Param("id"), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, deal)
}

func (h *Handler) Delete(c *gin.Context) {
	if httpkit.HandleError(c, h.svc.Delete(c.Request.Context(), c.Param("id"))) {
		return
	}
	c.Status(http.StatusNoContent)
}

// SendMessage runs one conversation turn and returns the turn report.
// POST /api/v1/deals/:id/messages
func (h *Handler) SendMessage(c *gin.Context) {
	var req transport.SendMessageRequest
	if !h.bind(c, &req) {
		return
	}

	deal, turn, err := h.svc.SendMessage(c.Request.Context(), c.Param("id"), req.Text)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.TurnResponse{Deal: deal, Turn: turn})
}

// MoveStage moves a deal manually.
// POST /api/v1/deals/:id/stage
func (h *Handler) MoveStage(c *gin.Context) {
	var req transport.MoveStageRequest
	if !h.bind(c, &req) {
		return
	}

	deal, err := h.svc.MoveStage(c.Request.Context(), c.Param("id"), req.StageID, req.TriggerAutomation)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, deal)
}
