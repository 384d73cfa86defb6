// Package repository persists deals in Postgres.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"salesflow_backend/internal/deals/domain"
	"salesflow_backend/internal/deals/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a deal does not exist.
var ErrNotFound = errors.New("deal not found")

// Repo implements ports.DealStore.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new deals repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

var _ ports.DealStore = (*Repo)(nil)

const dealColumns = `id, customer_name, stage_id, value, currency, last_interaction, chat_history, captured_data, revision`

// Upsert writes the full deal keyed by id. Repeating the same call leaves a
// single identical row. The write is dropped when the stored revision is
// newer or the id was deleted.
func (r *Repo) Upsert(ctx context.Context, d domain.Deal) error {
	history, err := json.Marshal(nonNilHistory(d.ChatHistory))
	if err != nil {
		return fmt.Errorf("encode chat history: %w", err)
	}
	captured, err := json.Marshal(nonNilCaptured(d.CapturedData))
	if err != nil {
		return fmt.Errorf("encode captured data: %w", err)
	}

	query := `
		INSERT INTO deals (` + dealColumns + `)
		SELECT $1::text, $2::text, $3::text, $4::numeric, $5::text, $6::timestamptz, $7::jsonb, $8::jsonb, $9::bigint
		WHERE NOT EXISTS (SELECT 1 FROM deal_tombstones WHERE id = $1::text)
		ON CONFLICT (id) DO UPDATE SET
			customer_name = EXCLUDED.customer_name,
			stage_id = EXCLUDED.stage_id,
			value = EXCLUDED.value,
			currency = EXCLUDED.currency,
			last_interaction = EXCLUDED.last_interaction,
			chat_history = EXCLUDED.chat_history,
			captured_data = EXCLUDED.captured_data,
			revision = EXCLUDED.revision,
			updated_at = now()
		WHERE deals.revision <= EXCLUDED.revision`

	lastInteraction := d.LastInteraction
	if lastInteraction.IsZero() {
		lastInteraction = time.Now()
	}

	if _, err := r.pool.Exec(ctx, query,
		d.ID, d.CustomerName, d.StageID, d.Value, d.Currency, lastInteraction,
		history, captured, d.Revision,
	); err != nil {
		return fmt.Errorf("upsert deal: %w", err)
	}
	return nil
}

// Delete removes a deal and records its id so later upserts of it are
// ignored. Deleting a missing deal is not an error.
func (r *Repo) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete deal: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `INSERT INTO deal_tombstones (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id); err != nil {
		return fmt.Errorf("record deal tombstone: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM deals WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete deal: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete deal: %w", err)
	}
	return nil
}

// Get loads one deal.
func (r *Repo) Get(ctx context.Context, id string) (domain.Deal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = $1`, id)
	d, err := scanDeal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Deal{}, ErrNotFound
	}
	if err != nil {
		return domain.Deal{}, fmt.Errorf("get deal: %w", err)
	}
	return d, nil
}

// List loads every deal, oldest first.
func (r *Repo) List(ctx context.Context) ([]domain.Deal, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+dealColumns+` FROM deals ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list deals: %w", err)
	}
	defer rows.Close()

	items := make([]domain.Deal, 0)
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deal: %w", err)
		}
		items = append(items, d)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate deals: %w", rows.Err())
	}
	return items, nil
}

func scanDeal(row pgx.Row) (domain.Deal, error) {
	var d domain.Deal
	var history, captured []byte
	if err := row.Scan(&d.ID, &d.CustomerName, &d.StageID, &d.Value, &d.Currency,
		&d.LastInteraction, &history, &captured, &d.Revision); err != nil {
		return domain.Deal{}, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &d.ChatHistory); err != nil {
			return domain.Deal{}, fmt.Errorf("decode chat history: %w", err)
		}
	}
	d.CapturedData = decodeCaptured(captured)
	d.ChatHistory = nonNilHistory(d.ChatHistory)
	return d, nil
}

// decodeCaptured tolerates non-string JSON values written by older clients
// by keeping their JSON text.
func decodeCaptured(raw []byte) map[string]string {
	out := make(map[string]string)
	if len(raw) == 0 {
		return out
	}
	var loose map[string]json.RawMessage
	if err := json.Unmarshal(raw, &loose); err != nil {
		return out
	}
	for k, v := range loose {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		out[k] = string(v)
	}
	return out
}

func nonNilHistory(h []domain.ChatMessage) []domain.ChatMessage {
	if h == nil {
		return []domain.ChatMessage{}
	}
	return h
}

func nonNilCaptured(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
