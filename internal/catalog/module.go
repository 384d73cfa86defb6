// Package catalog provides the catalog bounded context module.
package catalog

import (
	"salesflow_backend/internal/catalog/handler"
	"salesflow_backend/internal/catalog/repository"
	"salesflow_backend/internal/catalog/service"
	apphttp "salesflow_backend/internal/http"
	"salesflow_backend/platform/config"
	"salesflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Module is the catalog bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule wires the catalog. A configured CATALOG_FILE takes precedence
// over the database tables. cache may be nil.
func NewModule(pool *pgxpool.Pool, cache redis.UniversalClient, cfg config.CacheConfig, log *logger.Logger) *Module {
	var loader service.Loader
	if path := cfg.GetCatalogFile(); path != "" {
		log.Info("catalog loaded from file", "path", path)
		loader = service.NewFileLoader(path)
	} else {
		loader = repository.New(pool)
	}

	svc := service.New(loader, cache, cfg.GetCatalogCacheTTL(), log)
	return &Module{
		handler: handler.New(svc),
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "catalog"
}

// Service returns the service layer for other modules.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts catalog routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.GET("/catalog/snapshot", m.handler.GetSnapshot)
	ctx.Protected.GET("/catalog/pipeline", m.handler.GetPipeline)
}

var _ apphttp.Module = (*Module)(nil)
