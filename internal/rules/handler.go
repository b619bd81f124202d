package rules

import (
	"net/http"
	"time"

	"leadintent_backend/platform/httpkit"
	"leadintent_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler exposes the admin surface for rules and qualification config.
type Handler struct {
	service   *Service
	validator *validator.Validator
}

// NewHandler creates a new rules handler.
func NewHandler(service *Service, v *validator.Validator) *Handler {
	return &Handler{service: service, validator: v}
}

type ruleResponse struct {
	RuleKey      string             `json:"ruleKey"`
	RuleType     string             `json:"ruleType"`
	EventType    *string            `json:"eventType,omitempty"`
	Condition    *ModifierCondition `json:"condition,omitempty"`
	Points       int                `json:"points"`
	IsHardIntent bool               `json:"isHardIntent"`
	StageHint    *string            `json:"stageHint,omitempty"`
	IsActive     bool               `json:"isActive"`
	Description  string             `json:"description"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

func toRuleResponse(r ScoringRule) ruleResponse {
	return ruleResponse{
		RuleKey:      r.RuleKey,
		RuleType:     r.RuleType,
		EventType:    r.EventType,
		Condition:    r.Condition,
		Points:       r.Points,
		IsHardIntent: r.IsHardIntent,
		StageHint:    r.StageHint,
		IsActive:     r.IsActive,
		Description:  r.Description,
		UpdatedAt:    r.UpdatedAt,
	}
}

type configResponse struct {
	M2Min              int       `json:"m2Min"`
	M3Min              int       `json:"m3Min"`
	M4Min              int       `json:"m4Min"`
	M5Min              int       `json:"m5Min"`
	AutoPushThreshold  int       `json:"autoPushThreshold"`
	DecayPointsPerWeek int       `json:"decayPointsPerWeek"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func toConfigResponse(cfg QualificationConfig) configResponse {
	return configResponse{
		M2Min:              cfg.M2Min,
		M3Min:              cfg.M3Min,
		M4Min:              cfg.M4Min,
		M5Min:              cfg.M5Min,
		AutoPushThreshold:  cfg.AutoPushThreshold,
		DecayPointsPerWeek: cfg.DecayPointsPerWeek,
		UpdatedAt:          cfg.UpdatedAt,
	}
}

// ListRules handles GET /admin/rules.
func (h *Handler) ListRules(c *gin.Context) {
	list, err := h.service.ListRules(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	out := make([]ruleResponse, 0, len(list))
	for _, r := range list {
		out = append(out, toRuleResponse(r))
	}
	httpkit.OK(c, gin.H{"rules": out})
}

type updateRuleRequest struct {
	Points      *int    `json:"points" validate:"omitempty,gte=0"`
	IsActive    *bool   `json:"isActive"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

// UpdateRule handles PATCH /admin/rules/:ruleKey.
func (h *Handler) UpdateRule(c *gin.Context) {
	ruleKey := c.Param("ruleKey")

	var req updateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	rule, err := h.service.UpdateRule(c.Request.Context(), ruleKey, UpdateRuleParams{
		Points:      req.Points,
		IsActive:    req.IsActive,
		Description: req.Description,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toRuleResponse(rule))
}

// GetConfig handles GET /admin/qualification-config.
func (h *Handler) GetConfig(c *gin.Context) {
	cfg, err := h.service.GetConfig(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toConfigResponse(cfg))
}

type updateConfigRequest struct {
	M2Min              *int `json:"m2Min" validate:"omitempty,gte=0"`
	M3Min              *int `json:"m3Min" validate:"omitempty,gte=0"`
	M4Min              *int `json:"m4Min" validate:"omitempty,gte=0"`
	M5Min              *int `json:"m5Min" validate:"omitempty,gte=0"`
	AutoPushThreshold  *int `json:"autoPushThreshold" validate:"omitempty,gte=0"`
	DecayPointsPerWeek *int `json:"decayPointsPerWeek" validate:"omitempty,gte=0"`
}

// UpdateConfig handles PUT /admin/qualification-config.
func (h *Handler) UpdateConfig(c *gin.Context) {
	var req updateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	cfg, err := h.service.UpdateConfig(c.Request.Context(), UpdateConfigParams{
		M2Min:              req.M2Min,
		M3Min:              req.M3Min,
		M4Min:              req.M4Min,
		M5Min:              req.M5Min,
		AutoPushThreshold:  req.AutoPushThreshold,
		DecayPointsPerWeek: req.DecayPointsPerWeek,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, toConfigResponse(cfg))
}
