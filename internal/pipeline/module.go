package pipeline

import (
	"leadintent_backend/internal/events"
	apphttp "leadintent_backend/internal/http"
	"leadintent_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module wires the pipeline bounded context.
type Module struct {
	service *Service
	handler *Handler
}

// NewModule creates the pipeline module and registers its event subscribers.
// stageScheduler may be nil when no task backend is configured.
func NewModule(pool *pgxpool.Pool, history EventHistory, ruleProvider RuleProvider, bus events.Bus, stageScheduler StageRefreshScheduler, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	service := NewService(repo, history, ruleProvider, bus, stageScheduler, log)
	RegisterSubscribers(bus, service)
	return &Module{service: service, handler: NewHandler(service)}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "pipeline" }

// Service exposes the pipeline service for the scheduler worker.
func (m *Module) Service() *Service { return m.service }

// RegisterRoutes mounts the admin pipeline endpoints.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	admin := ctx.Admin.Group("/pipeline")
	admin.GET("/leads/:id", m.handler.GetLead)
	admin.POST("/leads/:id/refresh", m.handler.RefreshStage)
	admin.POST("/leads/:id/push", m.handler.Push)
}
