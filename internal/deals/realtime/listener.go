// Package realtime turns Postgres NOTIFY messages on the deals table into
// change events for the deal store.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"salesflow_backend/internal/deals/domain"
	"salesflow_backend/internal/deals/ports"
	"salesflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Channel is the NOTIFY channel the deals trigger publishes on.
const Channel = "deals_changes"

// Notification is the trigger payload. Rows are not embedded because
// NOTIFY payloads are capped at 8000 bytes and transcripts are not.
type Notification struct {
	Type ports.ChangeType `json:"type"`
	ID   string           `json:"id"`
}

// DealLoader fetches the current row for INSERT and UPDATE notifications.
type DealLoader interface {
	Get(ctx context.Context, id string) (domain.Deal, error)
}

// session is one LISTEN connection.
type session interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close()
}

type poolSession struct {
	conn *pgxpool.Conn
}

func (p poolSession) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	return p.conn.Conn().WaitForNotification(ctx)
}

func (p poolSession) Close() { p.conn.Release() }

// Listener implements ports.ChangeFeed over LISTEN/NOTIFY.
type Listener struct {
	pool     *pgxpool.Pool
	loader   DealLoader
	notFound error
	log      *logger.Logger
	backoff  time.Duration
	connect  func(ctx context.Context) (session, error)
	resync   func(ctx context.Context) error
}

// NewListener creates a listener. notFound is the loader's error for rows
// deleted before they could be fetched; such notifications are dropped.
func NewListener(pool *pgxpool.Pool, loader DealLoader, notFound error, log *logger.Logger) *Listener {
	l := &Listener{pool: pool, loader: loader, notFound: notFound, log: log, backoff: 2 * time.Second}
	l.connect = l.listenOnPool
	return l
}

// OnListen registers fn to run each time LISTEN is established, before
// notifications are read. Changes written while no connection was
// listening never produce a notification, so fn should re-read the table.
// A failing fn drops the connection and is retried after the backoff.
func (l *Listener) OnListen(fn func(ctx context.Context) error) {
	l.resync = fn
}

var _ ports.ChangeFeed = (*Listener)(nil)

// Run listens until ctx is done, reconnecting after connection failures.
func (l *Listener) Run(ctx context.Context, onChange func(ports.ChangeEvent)) error {
	for {
		err := l.listen(ctx, onChange)
		if ctx.Err() != nil {
			return nil
		}
		l.log.Warn("deal change feed interrupted, reconnecting", "error", err, "backoff", l.backoff.String())
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.backoff):
		}
	}
}

func (l *Listener) listen(ctx context.Context, onChange func(ports.ChangeEvent)) error {
	sess, err := l.connect(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()
	l.log.Info("deal change feed listening", "channel", Channel)

	if l.resync != nil {
		if err := l.resync(ctx); err != nil {
			return fmt.Errorf("resync after listen: %w", err)
		}
	}

	for {
		n, err := sess.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		ev, ok := l.resolve(ctx, n.Payload)
		if ok {
			onChange(ev)
		}
	}
}

func (l *Listener) listenOnPool(ctx context.Context) (session, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", Channel, err)
	}
	return poolSession{conn: conn}, nil
}

// resolve decodes a payload and loads the row it refers to.
func (l *Listener) resolve(ctx context.Context, payload string) (ports.ChangeEvent, bool) {
	note, err := ParseNotification(payload)
	if err != nil {
		l.log.Warn("ignoring malformed deal notification", "payload", payload, "error", err)
		return ports.ChangeEvent{}, false
	}

	if note.Type == ports.ChangeDelete {
		return ports.ChangeEvent{Type: ports.ChangeDelete, ID: note.ID}, true
	}

	deal, err := l.loader.Get(ctx, note.ID)
	if err != nil {
		if l.notFound == nil || !errors.Is(err, l.notFound) {
			l.log.Warn("failed to load changed deal", "deal_id", note.ID, "error", err)
		}
		return ports.ChangeEvent{}, false
	}
	return ports.ChangeEvent{Type: note.Type, ID: note.ID, Deal: deal}, true
}

// ParseNotification decodes and validates a trigger payload.
func ParseNotification(payload string) (Notification, error) {
	var n Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return Notification{}, err
	}
	switch n.Type {
	case ports.ChangeInsert, ports.ChangeUpdate, ports.ChangeDelete:
	default:
		return Notification{}, fmt.Errorf("unknown change type %q", n.Type)
	}
	if n.ID == "" {
		return Notification{}, errors.New("missing deal id")
	}
	return n, nil
}
