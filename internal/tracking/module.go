// Package tracking wires the tracking bounded context: event ingestion,
// scoring pipeline, identity merge and ingest key management.
package tracking

import (
	"leadintent_backend/internal/events"
	apphttp "leadintent_backend/internal/http"
	"leadintent_backend/internal/tracking/handler"
	"leadintent_backend/internal/tracking/repository"
	"leadintent_backend/internal/tracking/service"
	"leadintent_backend/platform/config"
	"leadintent_backend/platform/logger"
	"leadintent_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module wires the tracking bounded context.
type Module struct {
	service *service.Service
	handler *handler.Handler
}

// NewModule creates the tracking module with all its dependencies.
// archiver may be nil when payload archiving is disabled.
func NewModule(
	pool *pgxpool.Pool,
	ruleProvider service.RuleProvider,
	archiver service.PayloadArchiver,
	bus events.Bus,
	cfg config.TrackingConfig,
	v *validator.Validator,
	log *logger.Logger,
) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, ruleProvider, archiver, bus, cfg, log)
	return &Module{
		service: svc,
		handler: handler.New(svc, v),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "tracking" }

// Service exposes the tracking service for the scheduler worker.
func (m *Module) Service() *service.Service { return m.service }

// RegisterRoutes mounts the collaborator-facing and admin tracking routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	track := ctx.V1.Group("/track")
	track.Use(ctx.IngestRateLimiter.RateLimit(), handler.APIKeyAuth(m.service))
	track.POST("/events", m.handler.IngestEvent)
	track.POST("/identify", m.handler.Identify)

	admin := ctx.Admin.Group("/tracking")
	admin.POST("/recompute", m.handler.Recompute)
	admin.POST("/api-keys", m.handler.CreateAPIKey)
	admin.GET("/api-keys", m.handler.ListAPIKeys)
	admin.DELETE("/api-keys/:id", m.handler.RevokeAPIKey)
}
