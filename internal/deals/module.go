// Package deals provides the deal conversation bounded context module.
// It wires the engine, the synchronized store, the durable repository and
// the realtime change feed, and mounts the deals API.
package deals

import (
	"context"
	"fmt"

	"salesflow_backend/internal/deals/agent"
	"salesflow_backend/internal/deals/engine"
	"salesflow_backend/internal/deals/handler"
	"salesflow_backend/internal/deals/management"
	"salesflow_backend/internal/deals/ports"
	"salesflow_backend/internal/deals/realtime"
	"salesflow_backend/internal/deals/repository"
	"salesflow_backend/internal/deals/store"
	"salesflow_backend/internal/events"
	apphttp "salesflow_backend/internal/http"
	"salesflow_backend/platform/config"
	"salesflow_backend/platform/logger"
	"salesflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the deals bounded context module implementing http.Module.
type Module struct {
	handler    *handler.Handler
	management *management.Service
	store      *store.Store
	listener   *realtime.Listener
	log        *logger.Logger
}

// NewModule creates the deals module and hydrates the store from the
// database. The realtime listener re-reads the table each time it starts
// listening, covering writes made before LISTEN or during a reconnect.
// retry may be nil.
func NewModule(ctx context.Context, pool *pgxpool.Pool, cat ports.CatalogProvider, bus events.Bus, retry ports.RetryQueue, val *validator.Validator, cfg *config.Config, log *logger.Logger) (*Module, error) {
	repo := repository.New(pool)

	policy, err := store.ParseMergePolicy(cfg.GetMergePolicy())
	if err != nil {
		return nil, err
	}
	opts := store.Options{
		Policy:         policy,
		TombstoneTTL:   cfg.GetDeleteTombstoneTTL(),
		PersistTimeout: cfg.GetPersistTimeout(),
		Retry:          retry,
	}
	st := store.New(repo, opts, log)

	existing, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("hydrate deals: %w", err)
	}
	st.Hydrate(existing)
	log.Info("deal store hydrated", "count", len(existing), "merge_policy", string(policy))

	var (
		extractor ports.FieldExtractor
		generator ports.ReplyGenerator
	)
	if cfg.IsAIEnabled() {
		client, err := agent.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		extractor = agent.NewExtractor(client, cfg.GetExtractionModel(), val)
		generator = agent.NewResponder(client, cfg.GetGeminiModel(), cfg.GetReplyTemperature())
	} else {
		log.Warn("GEMINI_API_KEY not set, turns will use the fallback reply")
	}

	eng := engine.New(cat, extractor, generator, engine.Config{FallbackReply: cfg.GetFallbackReply()}, log)
	mgmt := management.New(eng, st, cat, bus, cfg, log)

	listener := realtime.NewListener(pool, repo, repository.ErrNotFound, log)
	listener.OnListen(func(ctx context.Context) error {
		deals, err := repo.List(ctx)
		if err != nil {
			return err
		}
		st.Resync(deals)
		return nil
	})

	return &Module{
		handler:    handler.New(mgmt, val),
		management: mgmt,
		store:      st,
		listener:   listener,
		log:        log,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "deals"
}

// Store returns the synchronized deal store for other modules.
func (m *Module) Store() *store.Store {
	return m.store
}

// ManagementService returns the deal management service.
func (m *Module) ManagementService() *management.Service {
	return m.management
}

// StartRealtime merges database change notifications into the store until
// ctx is cancelled.
func (m *Module) StartRealtime(ctx context.Context) {
	go func() {
		if err := m.listener.Run(ctx, m.store.OnRemoteChange); err != nil && ctx.Err() == nil {
			m.log.Error("realtime listener stopped", "error", err)
		}
	}()
}

// Shutdown waits for in-flight background writes.
func (m *Module) Shutdown() {
	m.store.Wait()
}

// RegisterRoutes mounts deals routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	var limiter gin.HandlerFunc
	if ctx.MessageLimiter != nil {
		limiter = ctx.MessageLimiter.RateLimit()
	}
	m.handler.RegisterRoutes(ctx.Protected.Group("/deals"), limiter)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
