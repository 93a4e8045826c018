// Package handler exposes the reach workflow over HTTP.
package handler

import (
	"net/http"

	"reachflow/internal/reach/domain"
	"reachflow/internal/reach/service"
	"reachflow/internal/reach/transport"
	"reachflow/platform/httpkit"
	"reachflow/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

type Handler struct {
	svc  *service.Service
	conn *service.Connectivity
	val  *validator.Validator
}

func New(svc *service.Service, conn *service.Connectivity, val *validator.Validator) *Handler {
	return &Handler{svc: svc, conn: conn, val: val}
}

// RegisterLeadRoutes mounts the per-lead reach routes on /leads/:id/reach.
func (h *Handler) RegisterLeadRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("", h.Get)
	rg.GET("/status", h.Status)
	rg.GET("/can/:action", h.CanTransition)
	rg.POST("/transitions", h.Transition)
	rg.GET("/interactions", h.ListInteractions)
	rg.POST("/interactions/:interactionId/outcome", h.RecordOutcome)
	rg.GET("/pending", h.PendingMutations)
}

// RegisterWorkflowRoutes mounts the lead-independent routes on /reach.
func (h *Handler) RegisterWorkflowRoutes(rg *gin.RouterGroup) {
	rg.GET("/outcomes/:channel", h.OutcomeChoices)
	rg.GET("/connectivity", h.Connectivity)
	rg.PUT("/connectivity", h.SetConnectivity)
}

func (h *Handler) Create(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	rec, err := h.svc.CreateLead(c.Request.Context(), leadID)
	if err != nil {
		httpkit.AppError(c, err)
		return
	}
	httpkit.JSON(c, http.StatusCreated, rec)
}

func (h *Handler) Get(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	rec, err := h.svc.GetRecord(c.Request.Context(), leadID)
	if err != nil {
		httpkit.AppError(c, err)
		return
	}
	httpkit.OK(c, rec)
}

func (h *Handler) Status(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	status, err := h.svc.GetCurrentStatus(c.Request.Context(), leadID)
	if err != nil {
		httpkit.AppError(c, err)
		return
	}
	httpkit.OK(c, transport.StatusResponse{LeadID: leadID.String(), Status: string(status)})
}

func (h *Handler) CanTransition(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	action := domain.Action(c.Param("action"))

	allowed, err := h.svc.CanTransition(c.Request.Context(), leadID, action)
	if err != nil {
		httpkit.AppError(c, err)
		return
	}
	httpkit.OK(c, transport.CanTransitionResponse{Action: string(action), Allowed: allowed})
}

func (h *Handler) Transition(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.RequestTransition(c.Request.Context(), leadID, domain.Action(req.Action), service.TransitionInput{Payload: req.Payload})
	if err != nil {
		httpkit.AppError(c, err)
		return
	}

	status := http.StatusOK
	if result.Queued {
		status = http.StatusAccepted
	}
	httpkit.JSON(c, status, result)
}

func (h *Handler) RecordOutcome(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	interactionID, err := uuid.Parse(c.Param("interactionId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	var req transport.OutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.RecordOutcome(
		c.Request.Context(),
		leadID,
		interactionID,
		domain.Channel(req.Channel),
		domain.Outcome(req.Outcome),
		req.Note,
	)
	if err != nil {
		httpkit.AppError(c, err)
		return
	}

	status := http.StatusOK
	if result.Queued {
		status = http.StatusAccepted
	}
	httpkit.JSON(c, status, result)
}

func (h *Handler) ListInteractions(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	interactions, err := h.svc.ListInteractions(c.Request.Context(), leadID)
	if err != nil {
		httpkit.AppError(c, err)
		return
	}
	httpkit.OK(c, transport.InteractionListResponse{Interactions: interactions, Total: len(interactions)})
}

func (h *Handler) PendingMutations(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	count, err := h.svc.PendingMutationCount(c.Request.Context(), leadID)
	if err != nil {
		httpkit.AppError(c, err)
		return
	}
	httpkit.OK(c, transport.PendingMutationsResponse{LeadID: leadID.String(), Pending: count})
}

func (h *Handler) OutcomeChoices(c *gin.Context) {
	channel := domain.Channel(c.Param("channel"))

	choices, err := h.svc.OutcomeChoices(channel)
	if err != nil {
		httpkit.AppError(c, err)
		return
	}

	outcomes := make([]string, len(choices))
	for i, o := range choices {
		outcomes[i] = string(o)
	}
	httpkit.OK(c, transport.OutcomeChoicesResponse{Channel: string(channel), Outcomes: outcomes})
}

func (h *Handler) Connectivity(c *gin.Context) {
	httpkit.OK(c, transport.ConnectivityResponse{Online: h.conn.Online()})
}

// SetConnectivity updates the caller-signaled connectivity flag. Flipping
// from offline to online kicks off a drain of the mutation queue.
func (h *Handler) SetConnectivity(c *gin.Context) {
	var req transport.ConnectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	h.conn.SetOnline(*req.Online)
	httpkit.OK(c, transport.ConnectivityResponse{Online: h.conn.Online()})
}
