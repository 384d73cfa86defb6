// Package management owns deal lifecycle operations: starting sandbox
// conversations, running turns, manual stage moves, edits, deletion and
// the kanban board.
package management

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	catalog "salesflow_backend/internal/catalog/domain"
	"salesflow_backend/internal/deals/domain"
	"salesflow_backend/internal/deals/engine"
	"salesflow_backend/internal/deals/ports"
	"salesflow_backend/internal/deals/transport"
	"salesflow_backend/internal/events"
	"salesflow_backend/platform/apperr"
	"salesflow_backend/platform/config"
	"salesflow_backend/platform/logger"
	"salesflow_backend/platform/phone"
	"salesflow_backend/platform/sanitize"

	"github.com/google/uuid"
)

// TurnRunner runs one conversation turn. *engine.Engine satisfies it.
type TurnRunner interface {
	Advance(ctx context.Context, deal domain.Deal, text string) (domain.Deal, engine.Turn)
}

// DealStore is the slice of the synchronized store the service needs.
// This is a consumer-driven interface; *store.Store satisfies it.
type DealStore interface {
	Get(id string) (domain.Deal, bool)
	Snapshot() []domain.Deal
	Commit(deal domain.Deal) domain.Deal
	DeleteDeal(id string) bool
}

// Service handles deal operations. Turns and moves on the same deal are
// serialized; different deals proceed in parallel.
type Service struct {
	engine  TurnRunner
	store   DealStore
	catalog ports.CatalogProvider
	bus     events.Bus
	cfg     config.EngineConfig
	log     *logger.Logger
	now     func() time.Time

	locks sync.Map // deal id -> *sync.Mutex
}

// New creates a deal management service.
func New(runner TurnRunner, store DealStore, cat ports.CatalogProvider, bus events.Bus, cfg config.EngineConfig, log *logger.Logger) *Service {
	return &Service{
		engine:  runner,
		store:   store,
		catalog: cat,
		bus:     bus,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

func (s *Service) lock(id string) func() {
	m, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// StartConversation creates a fresh deal at the first pipeline stage.
func (s *Service) StartConversation(ctx context.Context, customerName string) (domain.Deal, error) {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return domain.Deal{}, err
	}
	first, ok := snap.FirstStage()
	if !ok {
		return domain.Deal{}, apperr.Validation("pipeline has no stages").WithOp("deals.StartConversation")
	}

	currency := s.cfg.GetDefaultCurrency()
	if currency == "" {
		currency = "USD"
	}

	deal := domain.Deal{
		ID:              uuid.NewString(),
		CustomerName:    sanitize.Name(customerName),
		StageID:         first.ID,
		Value:           0,
		Currency:        currency,
		LastInteraction: s.now(),
		ChatHistory:     []domain.ChatMessage{},
		CapturedData:    map[string]string{},
	}
	return s.store.Commit(deal), nil
}

// SendMessage runs one turn for the deal and commits the result.
func (s *Service) SendMessage(ctx context.Context, id, text string) (domain.Deal, engine.Turn, error) {
	text = sanitize.Text(text)
	if text == "" {
		return domain.Deal{}, engine.Turn{}, apperr.Validation("message is empty")
	}

	unlock := s.lock(id)
	defer unlock()

	current, ok := s.store.Get(id)
	if !ok {
		return domain.Deal{}, engine.Turn{}, apperr.NotFound("deal not found")
	}

	ctx = logger.ContextWithDealID(ctx, id)
	next, turn := s.engine.Advance(ctx, current, text)
	applied := s.store.Commit(next)

	s.bus.Publish(ctx, events.DealTurnCompleted{
		BaseEvent:      events.NewBaseEvent(),
		DealID:         applied.ID,
		StageID:        applied.StageID,
		ExtractedField: turn.ExtractedField,
		SelectedCourse: turn.SelectedCourse,
		ReplySource:    string(turn.ReplySource),
		MessageCount:   len(applied.ChatHistory),
	})
	if turn.StageChanged() {
		s.bus.Publish(ctx, events.DealStageChanged{
			BaseEvent:   events.NewBaseEvent(),
			DealID:      applied.ID,
			FromStageID: turn.FromStageID,
			ToStageID:   turn.ToStageID,
		})
	}
	if turn.Quotation != nil {
		s.bus.Publish(ctx, events.DealQuotationDetected{
			BaseEvent: events.NewBaseEvent(),
			DealID:    applied.ID,
			Amount:    turn.Quotation.Amount,
			Currency:  applied.Currency,
		})
	}
	return applied, turn, nil
}

// MoveStage moves a deal manually. With triggerAutomation the target
// stage's script is rendered and appended as one agent message. Moving to
// the current stage changes nothing.
func (s *Service) MoveStage(ctx context.Context, id, targetStageID string, triggerAutomation bool) (domain.Deal, error) {
	unlock := s.lock(id)
	defer unlock()

	current, ok := s.store.Get(id)
	if !ok {
		return domain.Deal{}, apperr.NotFound("deal not found")
	}
	if current.StageID == targetStageID {
		return current, nil
	}

	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return domain.Deal{}, err
	}
	target, ok := snap.StageByID(targetStageID)
	if !ok {
		return domain.Deal{}, apperr.NotFound("stage not found")
	}

	d := current.Clone()
	now := s.now()
	if triggerAutomation {
		text := domain.RenderScript(target.ScriptTemplate, domain.ScriptVars{
			BotName:      s.botName(snap),
			CustomerName: d.CustomerName,
		})
		d.Append(domain.NewMessage(domain.RoleAgent, text, now))
	}
	d.StageID = target.ID
	d.Touch(now)

	applied := s.store.Commit(d)
	s.bus.Publish(ctx, events.DealStageChanged{
		BaseEvent:   events.NewBaseEvent(),
		DealID:      applied.ID,
		FromStageID: current.StageID,
		ToStageID:   applied.StageID,
		Manual:      true,
		Automated:   triggerAutomation,
	})
	return applied, nil
}

func (s *Service) botName(snap catalog.Snapshot) string {
	if snap.Agent.Name != "" {
		return snap.Agent.Name
	}
	return s.cfg.GetBotName()
}

// UpdateDeal applies a manual edit of name, value, currency or captured
// fields.
func (s *Service) UpdateDeal(ctx context.Context, id string, req transport.UpdateDealRequest) (domain.Deal, error) {
	unlock := s.lock(id)
	defer unlock()

	current, ok := s.store.Get(id)
	if !ok {
		return domain.Deal{}, apperr.NotFound("deal not found")
	}

	d := current.Clone()
	if len(req.CapturedData) > 0 {
		snap, err := s.catalog.Snapshot(ctx)
		if err != nil {
			return domain.Deal{}, err
		}
		edits, err := capturedEdits(snap, req.CapturedData)
		if err != nil {
			return domain.Deal{}, err
		}
		for key, value := range edits {
			d.Capture(key, value)
		}
	}
	if req.CustomerName != nil {
		d.CustomerName = sanitize.Name(*req.CustomerName)
	}
	if req.Value != nil {
		d.Value = *req.Value
	}
	if req.Currency != nil {
		d.Currency = strings.ToUpper(*req.Currency)
	}
	return s.store.Commit(d), nil
}

// capturedEdits checks operator edits against the field schema. Keys must
// name a contact property and values must be non-empty after
// sanitization. Phone values written in international form are stored as
// E.164.
func capturedEdits(snap catalog.Snapshot, edits map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(edits))
	invalid := make(map[string]string)
	for key, raw := range edits {
		prop, ok := snap.PropertyByKey(key)
		if !ok {
			invalid[key] = "unknown field"
			continue
		}
		value := sanitize.Name(raw)
		if value == "" {
			invalid[key] = "empty value"
			continue
		}
		if prop.Type == catalog.PropertyPhone {
			value, _ = phone.NormalizeE164(value, "")
		}
		out[key] = value
	}
	if len(invalid) > 0 {
		return nil, apperr.Validation("invalid captured data").WithDetails(invalid)
	}
	return out, nil
}

// Delete removes a deal locally and durably.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.lock(id)
	existed := s.store.DeleteDeal(id)
	unlock()
	s.locks.Delete(id)

	if !existed {
		return apperr.NotFound("deal not found")
	}
	s.bus.Publish(ctx, events.DealDeleted{BaseEvent: events.NewBaseEvent(), DealID: id})
	return nil
}

// Get returns one deal.
func (s *Service) Get(_ context.Context, id string) (domain.Deal, error) {
	d, ok := s.store.Get(id)
	if !ok {
		return domain.Deal{}, apperr.NotFound("deal not found")
	}
	return d, nil
}

// List returns every deal in insertion order.
func (s *Service) List(_ context.Context) transport.DealListResponse {
	items := s.store.Snapshot()
	return transport.DealListResponse{Items: items, Total: len(items)}
}

// Board groups deals by pipeline stage. q matches customer name or the
// selected course, ignoring case and diacritics. stagnant keeps only deals
// idle for at least the configured threshold.
func (s *Service) Board(ctx context.Context, query transport.BoardQuery) (transport.BoardResponse, error) {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return transport.BoardResponse{}, err
	}

	now := s.now()
	needle := domain.Normalize(strings.TrimSpace(query.Query))
	byStage := make(map[string][]domain.Deal, len(snap.Stages))
	resp := transport.BoardResponse{
		Columns:  make([]transport.BoardColumn, 0, len(snap.Stages)),
		Totals:   map[string]float64{},
		Unstaged: []domain.Deal{},
	}

	for _, d := range s.store.Snapshot() {
		if needle != "" &&
			!strings.Contains(domain.Normalize(d.CustomerName), needle) &&
			!strings.Contains(domain.Normalize(d.SelectedCourse()), needle) {
			continue
		}
		if query.Stagnant && !d.IsStagnant(now, s.cfg.GetStagnantAfter()) {
			continue
		}
		if _, ok := snap.StageByID(d.StageID); !ok {
			resp.Unstaged = append(resp.Unstaged, d)
		} else {
			byStage[d.StageID] = append(byStage[d.StageID], d)
		}
		if d.Currency != "" {
			resp.Totals[d.Currency] += d.Value
		}
	}

	for _, st := range snap.Stages {
		deals := byStage[st.ID]
		if deals == nil {
			deals = []domain.Deal{}
		}
		sort.SliceStable(deals, func(i, j int) bool {
			return deals[i].LastInteraction.After(deals[j].LastInteraction)
		})
		resp.Columns = append(resp.Columns, transport.BoardColumn{Stage: st, Deals: deals, Count: len(deals)})
	}
	return resp, nil
}
