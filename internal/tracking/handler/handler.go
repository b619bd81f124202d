// Package handler exposes the tracking HTTP surface: the collaborator-facing
// ingest/identify endpoints and the admin maintenance and key management
// endpoints.
package handler

import (
	"net/http"

	"leadintent_backend/internal/tracking/service"
	"leadintent_backend/internal/tracking/transport"
	"leadintent_backend/platform/httpkit"
	"leadintent_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler handles tracking HTTP requests.
type Handler struct {
	service   *service.Service
	validator *validator.Validator
}

// New creates a new tracking handler.
func New(svc *service.Service, v *validator.Validator) *Handler {
	return &Handler{service: svc, validator: v}
}

// IngestEvent handles POST /track/events. Persistence failures do not fail
// the request: the tracker gets 202 with stored=false and may retry with the
// same dedupe key.
func (h *Handler) IngestEvent(c *gin.Context) {
	var req transport.IngestEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	resp, err := h.service.Ingest(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	if !resp.Stored {
		httpkit.JSON(c, http.StatusAccepted, resp)
		return
	}
	httpkit.OK(c, resp)
}

// Identify handles POST /track/identify.
func (h *Handler) Identify(c *gin.Context) {
	var req transport.IdentifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	resp, err := h.service.Identify(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// Recompute handles POST /admin/tracking/recompute.
func (h *Handler) Recompute(c *gin.Context) {
	var req transport.RecomputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	resp, err := h.service.Recompute(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

// CreateAPIKey handles POST /admin/tracking/api-keys.
func (h *Handler) CreateAPIKey(c *gin.Context) {
	var req transport.CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	resp, err := h.service.CreateAPIKey(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, resp)
}

// ListAPIKeys handles GET /admin/tracking/api-keys.
func (h *Handler) ListAPIKeys(c *gin.Context) {
	keys, err := h.service.ListAPIKeys(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"apiKeys": keys})
}

// RevokeAPIKey handles DELETE /admin/tracking/api-keys/:id.
func (h *Handler) RevokeAPIKey(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid api key id", nil)
		return
	}
	if err := h.service.RevokeAPIKey(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}
