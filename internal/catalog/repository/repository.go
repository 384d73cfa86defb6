// Package repository loads the sales catalog from Postgres.
package repository

import (
	"context"
	"errors"
	"fmt"

	"salesflow_backend/internal/catalog/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// Repository reads the full catalog snapshot.
type Repository interface {
	LoadSnapshot(ctx context.Context) (domain.Snapshot, error)
}

// Repo implements Repository over a pgx pool.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new catalog repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

var _ Repository = (*Repo)(nil)

// LoadSnapshot reads every catalog collection concurrently. Any failure
// fails the whole load so callers never see a half-populated snapshot.
func (r *Repo) LoadSnapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) { snap.Agent, err = r.loadPersona(gctx); return })
	g.Go(func() (err error) { snap.Courses, err = queryAll(gctx, r.pool, "courses", selectCourses, scanCourse); return })
	g.Go(func() (err error) { snap.Pricing, err = queryAll(gctx, r.pool, "pricing", selectPricing, scanPricing); return })
	g.Go(func() (err error) {
		snap.PaymentLinks, err = queryAll(gctx, r.pool, "payment links", selectPaymentLinks, scanPaymentLink)
		return
	})
	g.Go(func() (err error) {
		snap.Professions, err = queryAll(gctx, r.pool, "professions", selectProfessions, scanProfession)
		return
	})
	g.Go(func() (err error) { snap.Rules, err = queryAll(gctx, r.pool, "profession rules", selectRules, scanRule); return })
	g.Go(func() (err error) { snap.Countries, err = queryAll(gctx, r.pool, "countries", selectCountries, scanCountry); return })
	g.Go(func() (err error) { snap.FAQs, err = queryAll(gctx, r.pool, "faqs", selectFAQs, scanFAQ); return })
	g.Go(func() (err error) {
		snap.Properties, err = queryAll(gctx, r.pool, "contact properties", selectProperties, scanProperty)
		return
	})
	g.Go(func() (err error) { snap.Stages, err = queryAll(gctx, r.pool, "pipeline", selectStages, scanStage); return })

	if err := g.Wait(); err != nil {
		return domain.Snapshot{}, err
	}
	snap.Normalize()
	return snap, nil
}

func (r *Repo) loadPersona(ctx context.Context) (domain.AgentPersona, error) {
	var p domain.AgentPersona
	err := r.pool.QueryRow(ctx, selectPersona).Scan(&p.Name, &p.Tone, &p.Model)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DefaultPersona, nil
	}
	if err != nil {
		return domain.AgentPersona{}, fmt.Errorf("load agent persona: %w", err)
	}
	return p, nil
}

func queryAll[T any](ctx context.Context, pool *pgxpool.Pool, name, query string, scan func(pgx.Rows) (T, error)) ([]T, error) {
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", name, err)
	}
	defer rows.Close()

	items := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", name, err)
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate %s: %w", name, rows.Err())
	}
	return items, nil
}
