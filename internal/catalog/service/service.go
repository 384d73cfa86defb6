// Package service serves the catalog snapshot to the rest of the
// application, caching it in Redis between loads.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"salesflow_backend/internal/catalog/domain"
	"salesflow_backend/platform/apperr"
	"salesflow_backend/platform/logger"

	"github.com/redis/go-redis/v9"
)

const snapshotCacheKey = "salesflow:catalog:snapshot"

// Loader produces a fresh snapshot from the source of truth.
type Loader interface {
	LoadSnapshot(ctx context.Context) (domain.Snapshot, error)
}

// Service returns catalog snapshots. A nil cache disables caching.
type Service struct {
	loader Loader
	cache  redis.UniversalClient
	ttl    time.Duration
	log    *logger.Logger
}

// New creates a catalog service.
func New(loader Loader, cache redis.UniversalClient, ttl time.Duration, log *logger.Logger) *Service {
	return &Service{loader: loader, cache: cache, ttl: ttl, log: log}
}

// Snapshot returns the cached snapshot or loads a fresh one. Cache errors
// degrade to a direct load.
func (s *Service) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	if snap, ok := s.fromCache(ctx); ok {
		return snap, nil
	}

	snap, err := s.loader.LoadSnapshot(ctx)
	if err != nil {
		return domain.Snapshot{}, apperr.Wrap(apperr.KindUnavailable, "catalog unavailable", err).WithOp("catalog.Snapshot")
	}

	s.store(ctx, snap)
	return snap, nil
}

// Pipeline returns the ordered pipeline stages.
func (s *Service) Pipeline(ctx context.Context) ([]domain.Stage, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Stages, nil
}

// Invalidate drops the cached snapshot so the next read reloads it.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Del(ctx, snapshotCacheKey).Err(); err != nil {
		return fmt.Errorf("invalidate catalog cache: %w", err)
	}
	return nil
}

func (s *Service) fromCache(ctx context.Context) (domain.Snapshot, bool) {
	if s.cache == nil || s.ttl <= 0 {
		return domain.Snapshot{}, false
	}
	raw, err := s.cache.Get(ctx, snapshotCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("catalog cache read failed", "error", err)
		}
		return domain.Snapshot{}, false
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.log.Warn("catalog cache entry corrupt", "error", err)
		return domain.Snapshot{}, false
	}
	return snap, true
}

func (s *Service) store(ctx context.Context, snap domain.Snapshot) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, snapshotCacheKey, raw, s.ttl).Err(); err != nil {
		s.log.Warn("catalog cache write failed", "error", err)
	}
}
