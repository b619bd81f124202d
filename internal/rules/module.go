package rules

import (
	"leadintent_backend/internal/http"
	"leadintent_backend/platform/logger"
	"leadintent_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module wires the rules bounded context.
type Module struct {
	service *Service
	handler *Handler
}

// NewModule creates the rules module with all its dependencies.
func NewModule(pool *pgxpool.Pool, v *validator.Validator, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	service := NewService(repo, log)
	handler := NewHandler(service, v)
	return &Module{service: service, handler: handler}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "rules" }

// Service exposes the rules service for other modules (scoring reads the
// active snapshot through it).
func (m *Module) Service() *Service { return m.service }

// RegisterRoutes mounts the admin rule management endpoints.
func (m *Module) RegisterRoutes(ctx *http.RouterContext) {
	admin := ctx.Admin
	admin.GET("/rules", m.handler.ListRules)
	admin.PATCH("/rules/:ruleKey", m.handler.UpdateRule)
	admin.GET("/qualification-config", m.handler.GetConfig)
	admin.PUT("/qualification-config", m.handler.UpdateConfig)
}
