// Package ports defines the interfaces the deals domain requires from
// external systems: the language model, durable storage, the realtime
// change feed and the catalog.
package ports

import (
	"context"
	"errors"

	catalog "salesflow_backend/internal/catalog/domain"
	"salesflow_backend/internal/deals/domain"
)

// ErrFieldNotFound is returned by a FieldExtractor when the text does not
// contain the requested field.
var ErrFieldNotFound = errors.New("field not found in text")

// FieldExtractor pulls one field value out of free text. The property
// description is the authoritative extraction rule.
type FieldExtractor interface {
	Extract(ctx context.Context, text string, property catalog.ContactProperty) (string, error)
}

// ReplyGenerator produces the agent's next utterance. history holds the
// transcript before userMessage.
type ReplyGenerator interface {
	Generate(ctx context.Context, userMessage string, history []domain.ChatMessage, snapshot catalog.Snapshot) (string, error)
}

// CatalogProvider returns the current catalog.
type CatalogProvider interface {
	Snapshot(ctx context.Context) (catalog.Snapshot, error)
}

// DealStore is the durable deal collection. Upsert and Delete are
// idempotent. Upsert never replaces a row holding a higher revision and
// never recreates a deleted id, so writes may be replayed in any order.
type DealStore interface {
	Upsert(ctx context.Context, deal domain.Deal) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (domain.Deal, error)
	List(ctx context.Context) ([]domain.Deal, error)
}

// ChangeType is the kind of a realtime change.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is one durable-store mutation made by any session. Deal is
// set for INSERT and UPDATE; DELETE carries only ID.
type ChangeEvent struct {
	Type ChangeType
	ID   string
	Deal domain.Deal
}

// ChangeFeed delivers realtime changes until ctx is cancelled.
type ChangeFeed interface {
	Run(ctx context.Context, onChange func(ChangeEvent)) error
}

// RetryQueue accepts persistence work that failed on the hot path.
type RetryQueue interface {
	EnqueuePersist(ctx context.Context, deal domain.Deal) error
	EnqueueDelete(ctx context.Context, id string) error
}
