package pipeline

import (
	"net/http"
	"time"

	"leadintent_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler exposes the admin pipeline surface.
type Handler struct {
	service *Service
}

// NewHandler creates a new pipeline handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type leadResponse struct {
	ID              uuid.UUID  `json:"id"`
	Stage           string     `json:"stage"`
	DecayedScore    int        `json:"decayedScore"`
	AutoPushEnabled bool       `json:"autoPushEnabled"`
	SalesRef        *uuid.UUID `json:"salesRef,omitempty"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func toLeadResponse(lead MarketingLead) leadResponse {
	return leadResponse{
		ID:              lead.ID,
		Stage:           lead.Stage,
		DecayedScore:    lead.DecayedScore,
		AutoPushEnabled: lead.AutoPushEnabled,
		SalesRef:        lead.SalesRef,
		UpdatedAt:       lead.UpdatedAt,
	}
}

// GetLead handles GET /admin/pipeline/leads/:id.
func (h *Handler) GetLead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid lead id", nil)
		return
	}
	lead, err := h.service.GetLead(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toLeadResponse(lead))
}

// RefreshStage handles POST /admin/pipeline/leads/:id/refresh.
func (h *Handler) RefreshStage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid lead id", nil)
		return
	}
	lead, err := h.service.RefreshStage(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toLeadResponse(lead))
}

// Push handles POST /admin/pipeline/leads/:id/push.
func (h *Handler) Push(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid lead id", nil)
		return
	}
	outcome, err := h.service.AutoPush(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, outcome)
}
