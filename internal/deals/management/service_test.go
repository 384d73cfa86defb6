package management

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	catalog "salesflow_backend/internal/catalog/domain"
	"salesflow_backend/internal/deals/domain"
	"salesflow_backend/internal/deals/engine"
	"salesflow_backend/internal/deals/transport"
	"salesflow_backend/internal/events"
	"salesflow_backend/platform/apperr"
	"salesflow_backend/platform/logger"
)

type fakeStore struct {
	mu      sync.Mutex
	deals   map[string]domain.Deal
	order   []string
	commits int
}

func newFakeStore(deals ...domain.Deal) *fakeStore {
	s := &fakeStore{deals: map[string]domain.Deal{}}
	for _, d := range deals {
		s.deals[d.ID] = d
		s.order = append(s.order, d.ID)
	}
	return s
}

func (s *fakeStore) Get(id string) (domain.Deal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deals[id]
	return d.Clone(), ok
}

func (s *fakeStore) Snapshot() []domain.Deal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Deal, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.deals[id].Clone())
	}
	return out
}

func (s *fakeStore) Commit(d domain.Deal) domain.Deal {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commits++
	d.Revision++
	if _, ok := s.deals[d.ID]; !ok {
		s.order = append(s.order, d.ID)
	}
	s.deals[d.ID] = d.Clone()
	return d
}

func (s *fakeStore) DeleteDeal(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.deals[id]
	delete(s.deals, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return ok
}

type fakeCatalog struct {
	snap catalog.Snapshot
	err  error
}

func (f fakeCatalog) Snapshot(context.Context) (catalog.Snapshot, error) { return f.snap, f.err }

type fakeRunner struct {
	turn engine.Turn
	next func(domain.Deal) domain.Deal
}

func (f fakeRunner) Advance(_ context.Context, d domain.Deal, text string) (domain.Deal, engine.Turn) {
	d = d.Clone()
	d.Append(domain.NewMessage(domain.RoleUser, text, time.Now()))
	if f.next != nil {
		d = f.next(d)
	}
	return d, f.turn
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *recordingBus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.EventName())
	}
	return out
}

type fakeConfig struct{}

func (fakeConfig) GetFallbackReply() string         { return "" }
func (fakeConfig) GetBotName() string               { return "VentasBot 3000" }
func (fakeConfig) GetDefaultCurrency() string       { return "USD" }
func (fakeConfig) GetStagnantAfter() time.Duration { return 24 * time.Hour }

func pipeline() catalog.Snapshot {
	return catalog.Snapshot{
		Stages: []catalog.Stage{
			{ID: "s1", Order: 1, Name: "Saludo", ScriptTemplate: "Hola"},
			{ID: "s2", Order: 2, Name: "Cierre", ScriptTemplate: "Hola {customer_name}, soy {bot_name}. {customer_name}, ¿pagamos?"},
		},
	}
}

func newService(store *fakeStore, runner fakeRunner, snap catalog.Snapshot) (*Service, *recordingBus) {
	bus := &recordingBus{}
	svc := New(runner, store, fakeCatalog{snap: snap}, bus, fakeConfig{}, logger.New("test"))
	return svc, bus
}

func TestStartConversationUsesFirstStage(t *testing.T) {
	store := newFakeStore()
	svc, _ := newService(store, fakeRunner{}, pipeline())

	d, err := svc.StartConversation(context.Background(), " Ana ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.StageID != "s1" || d.CustomerName != "Ana" || d.Currency != "USD" || d.Value != 0 {
		t.Fatalf("unexpected deal %+v", d)
	}
	if len(d.ChatHistory) != 0 || len(d.CapturedData) != 0 {
		t.Fatalf("expected empty history and captured data")
	}
	if _, ok := store.Get(d.ID); !ok {
		t.Fatalf("expected deal committed to store")
	}
}

func TestStartConversationEmptyPipeline(t *testing.T) {
	svc, _ := newService(newFakeStore(), fakeRunner{}, catalog.Snapshot{})
	_, err := svc.StartConversation(context.Background(), "Ana")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSendMessagePublishesEvents(t *testing.T) {
	store := newFakeStore(domain.Deal{ID: "d1", StageID: "s1", Currency: "USD"})
	q := domain.Quotation{Amount: 450}
	runner := fakeRunner{
		turn: engine.Turn{FromStageID: "s1", ToStageID: "s2", ExtractedField: "email", Quotation: &q, ReplySource: engine.ReplyFromModel},
		next: func(d domain.Deal) domain.Deal {
			d.StageID = "s2"
			d.Value = 450
			return d
		},
	}
	svc, bus := newService(store, runner, pipeline())

	d, turn, err := svc.SendMessage(context.Background(), "d1", "hola")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.StageID != "s2" || turn.ExtractedField != "email" {
		t.Fatalf("unexpected result %+v %+v", d, turn)
	}
	stored, _ := store.Get("d1")
	if stored.Value != 450 || len(stored.ChatHistory) != 1 {
		t.Fatalf("expected committed turn, got %+v", stored)
	}

	names := bus.names()
	want := []string{"deals.turn.completed", "deals.stage.changed", "deals.quotation.detected"}
	if len(names) != len(want) {
		t.Fatalf("expected events %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, names)
		}
	}
}

func TestSendMessageUnknownDeal(t *testing.T) {
	svc, _ := newService(newFakeStore(), fakeRunner{}, pipeline())
	_, _, err := svc.SendMessage(context.Background(), "missing", "hola")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMoveStageWithoutAutomationAppendsNothing(t *testing.T) {
	store := newFakeStore(domain.Deal{ID: "d1", CustomerName: "Ana", StageID: "s1"})
	svc, bus := newService(store, fakeRunner{}, pipeline())

	d, err := svc.MoveStage(context.Background(), "d1", "s2", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.StageID != "s2" || len(d.ChatHistory) != 0 {
		t.Fatalf("unexpected deal %+v", d)
	}
	if d.LastInteraction.IsZero() {
		t.Fatalf("expected lastInteraction refreshed")
	}
	ev, ok := bus.events[0].(events.DealStageChanged)
	if !ok || !ev.Manual || ev.Automated || ev.FromStageID != "s1" {
		t.Fatalf("unexpected event %+v", bus.events[0])
	}
}

func TestMoveStageWithAutomationRendersScript(t *testing.T) {
	store := newFakeStore(domain.Deal{ID: "d1", CustomerName: "Ana", StageID: "s1"})
	snap := pipeline()
	snap.Agent = catalog.AgentPersona{Name: "Sofía"}
	svc, _ := newService(store, fakeRunner{}, snap)

	d, err := svc.MoveStage(context.Background(), "d1", "s2", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.ChatHistory) != 1 {
		t.Fatalf("expected one message, got %d", len(d.ChatHistory))
	}
	msg := d.ChatHistory[0]
	if msg.Role != domain.RoleAgent || msg.Text != "Hola Ana, soy Sofía. Ana, ¿pagamos?" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestMoveStageSameStageIsNoop(t *testing.T) {
	store := newFakeStore(domain.Deal{ID: "d1", StageID: "s1"})
	svc, bus := newService(store, fakeRunner{}, pipeline())

	if _, err := svc.MoveStage(context.Background(), "d1", "s1", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.commits != 0 || len(bus.names()) != 0 {
		t.Fatalf("expected no commit and no event, got %d commits %v", store.commits, bus.names())
	}
}

func TestMoveStageUnknownTargets(t *testing.T) {
	store := newFakeStore(domain.Deal{ID: "d1", StageID: "s1"})
	svc, _ := newService(store, fakeRunner{}, pipeline())

	if _, err := svc.MoveStage(context.Background(), "nope", "s2", false); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected deal not found, got %v", err)
	}
	if _, err := svc.MoveStage(context.Background(), "d1", "s9", false); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected stage not found, got %v", err)
	}
}

func TestMoveStageCatalogFailure(t *testing.T) {
	store := newFakeStore(domain.Deal{ID: "d1", StageID: "s1"})
	bus := &recordingBus{}
	boom := errors.New("boom")
	svc := New(fakeRunner{}, store, fakeCatalog{err: boom}, bus, fakeConfig{}, logger.New("test"))
	if _, err := svc.MoveStage(context.Background(), "d1", "s2", false); !errors.Is(err, boom) {
		t.Fatalf("expected catalog error, got %v", err)
	}
}

func TestUpdateDealPartial(t *testing.T) {
	store := newFakeStore(domain.Deal{ID: "d1", CustomerName: "Ana", Value: 10, Currency: "USD"})
	svc, _ := newService(store, fakeRunner{}, pipeline())

	value := 99.5
	currency := "mxn"
	d, err := svc.UpdateDeal(context.Background(), "d1", transport.UpdateDealRequest{Value: &value, Currency: &currency})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.CustomerName != "Ana" || d.Value != 99.5 || d.Currency != "MXN" {
		t.Fatalf("unexpected deal %+v", d)
	}
}

func contactSchema() catalog.Snapshot {
	snap := pipeline()
	snap.Properties = []catalog.ContactProperty{
		{Key: "email", Label: "Email", Type: catalog.PropertyEmail},
		{Key: "phone", Label: "Teléfono", Type: catalog.PropertyPhone},
		{Key: "profession", Label: "Profesión", Type: catalog.PropertyText},
	}
	return snap
}

func TestUpdateDealCapturedDataAddsAndOverwrites(t *testing.T) {
	store := newFakeStore(domain.Deal{ID: "d1", CapturedData: map[string]string{
		"email":      "old@example.com",
		"profession": "Enfermera",
	}})
	svc, _ := newService(store, fakeRunner{}, contactSchema())

	d, err := svc.UpdateDeal(context.Background(), "d1", transport.UpdateDealRequest{CapturedData: map[string]string{
		"email": " ana@example.com ",
		"phone": "+57 300 123 4567",
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.CapturedData["email"] != "ana@example.com" {
		t.Fatalf("expected overwritten email, got %q", d.CapturedData["email"])
	}
	if d.CapturedData["phone"] != "+573001234567" {
		t.Fatalf("expected E.164 phone, got %q", d.CapturedData["phone"])
	}
	if d.CapturedData["profession"] != "Enfermera" {
		t.Fatalf("untouched keys must be kept, got %+v", d.CapturedData)
	}
}

func TestUpdateDealRejectsUnknownOrEmptyCapturedFields(t *testing.T) {
	store := newFakeStore(domain.Deal{ID: "d1", CapturedData: map[string]string{"email": "ana@example.com"}})
	svc, _ := newService(store, fakeRunner{}, contactSchema())

	for _, edits := range []map[string]string{
		{"favorite_color": "azul"},
		{"email": "<b></b>"},
	} {
		_, err := svc.UpdateDeal(context.Background(), "d1", transport.UpdateDealRequest{CapturedData: edits})
		if !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("expected validation error for %v, got %v", edits, err)
		}
	}
	if store.commits != 0 {
		t.Fatalf("rejected edits must not commit")
	}
	if d, _ := store.Get("d1"); d.CapturedData["email"] != "ana@example.com" {
		t.Fatalf("rejected edits changed the deal: %+v", d.CapturedData)
	}
}

func TestDeletePublishesOnce(t *testing.T) {
	store := newFakeStore(domain.Deal{ID: "d1"})
	svc, bus := newService(store, fakeRunner{}, pipeline())

	if err := svc.Delete(context.Background(), "d1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Delete(context.Background(), "d1"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if names := bus.names(); len(names) != 1 || names[0] != "deals.deleted" {
		t.Fatalf("unexpected events %v", names)
	}
}

func TestBoardFiltersAndTotals(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore(
		domain.Deal{ID: "a", CustomerName: "José Pérez", StageID: "s1", Value: 100, Currency: "USD", LastInteraction: now.Add(-48 * time.Hour)},
		domain.Deal{ID: "b", CustomerName: "Ana", StageID: "s2", Value: 50, Currency: "USD", LastInteraction: now,
			CapturedData: map[string]string{domain.CapturedCourseKey: "Diseño Gráfico"}},
		domain.Deal{ID: "c", CustomerName: "Luis", StageID: "gone", Value: 1200, Currency: "MXN", LastInteraction: now},
	)
	svc, _ := newService(store, fakeRunner{}, pipeline())
	svc.now = func() time.Time { return now }

	all, err := svc.Board(context.Background(), transport.BoardQuery{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all.Columns) != 2 || all.Columns[0].Count != 1 || all.Columns[1].Count != 1 || len(all.Unstaged) != 1 {
		t.Fatalf("unexpected board %+v", all)
	}
	if all.Totals["USD"] != 150 || all.Totals["MXN"] != 1200 {
		t.Fatalf("unexpected totals %v", all.Totals)
	}

	search, _ := svc.Board(context.Background(), transport.BoardQuery{Query: "diseno"})
	if search.Columns[1].Count != 1 || search.Columns[0].Count != 0 {
		t.Fatalf("expected course search to match only b, got %+v", search.Columns)
	}

	byName, _ := svc.Board(context.Background(), transport.BoardQuery{Query: "jose"})
	if byName.Columns[0].Count != 1 || byName.Totals["USD"] != 100 {
		t.Fatalf("expected name search to match only a, got %+v", byName)
	}

	stagnant, _ := svc.Board(context.Background(), transport.BoardQuery{Stagnant: true})
	if stagnant.Columns[0].Count != 1 || stagnant.Columns[1].Count != 0 || len(stagnant.Unstaged) != 0 {
		t.Fatalf("expected only a to be stagnant, got %+v", stagnant)
	}
}

func TestSendMessageRejectsMarkupOnlyText(t *testing.T) {
	store := newFakeStore(domain.Deal{ID: "d1", StageID: "s1"})
	svc, _ := newService(store, fakeRunner{}, pipeline())
	_, _, err := svc.SendMessage(context.Background(), "d1", "  <br/> ")
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if store.commits != 0 {
		t.Fatalf("expected no commit")
	}
}
