package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	catalog "salesflow_backend/internal/catalog/domain"
	"salesflow_backend/internal/deals/domain"
	"salesflow_backend/internal/deals/ports"
	"salesflow_backend/platform/logger"
)

type fakeCatalog struct {
	snap catalog.Snapshot
	err  error
}

func (f fakeCatalog) Snapshot(context.Context) (catalog.Snapshot, error) { return f.snap, f.err }

type fakeExtractor struct {
	value string
	err   error
	calls int
	last  catalog.ContactProperty
}

func (f *fakeExtractor) Extract(_ context.Context, _ string, p catalog.ContactProperty) (string, error) {
	f.calls++
	f.last = p
	return f.value, f.err
}

type fakeGenerator struct {
	reply       string
	err         error
	lastHistory []domain.ChatMessage
	lastMessage string
}

func (f *fakeGenerator) Generate(_ context.Context, msg string, history []domain.ChatMessage, _ catalog.Snapshot) (string, error) {
	f.lastMessage = msg
	f.lastHistory = history
	return f.reply, f.err
}

func threeStagePipeline() catalog.Snapshot {
	return catalog.Snapshot{
		Courses: []catalog.Course{{SKU: "DG-01", Name: "Diseño Gráfico"}},
		Properties: []catalog.ContactProperty{
			{Key: "email", Label: "Correo", Type: catalog.PropertyEmail, Description: "Debe contener @"},
		},
		Stages: []catalog.Stage{
			{ID: "greet", Order: 1, Name: "Saludo"},
			{ID: "email", Order: 2, Name: "Email", RequiredInput: "email"},
			{ID: "pitch", Order: 3, Name: "Oferta"},
		},
	}
}

func newEngine(snap catalog.Snapshot, ex ports.FieldExtractor, gen ports.ReplyGenerator, fallback string) *Engine {
	fixed := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	return New(fakeCatalog{snap: snap}, ex, gen, Config{
		FallbackReply: fallback,
		Now:           func() time.Time { return fixed },
	}, logger.New("test"))
}

func baseDeal(stage string) domain.Deal {
	return domain.Deal{
		ID:           "deal-1",
		CustomerName: "Ana",
		StageID:      stage,
		Currency:     "USD",
		ChatHistory:  []domain.ChatMessage{{ID: "m0", Role: domain.RoleAgent, Text: "Hola"}},
		CapturedData: map[string]string{},
	}
}

func TestAdvanceExtractsAndMovesToNextStage(t *testing.T) {
	ex := &fakeExtractor{value: "a@b.com"}
	eng := newEngine(threeStagePipeline(), ex, &fakeGenerator{reply: "Gracias"}, "")

	out, turn := eng.Advance(context.Background(), baseDeal("email"), "mi correo es a@b.com")

	if out.CapturedData["email"] != "a@b.com" {
		t.Fatalf("expected captured email, got %v", out.CapturedData)
	}
	if out.StageID != "pitch" {
		t.Fatalf("expected pitch stage, got %s", out.StageID)
	}
	if !turn.StageChanged() || turn.ExtractedField != "email" {
		t.Fatalf("unexpected turn %+v", turn)
	}
	if ex.last.Key != "email" || ex.last.Description != "Debe contener @" {
		t.Fatalf("extractor got wrong property %+v", ex.last)
	}
}

func TestAdvanceOnLastStageCapturesWithoutMoving(t *testing.T) {
	snap := threeStagePipeline()
	snap.Stages = snap.Stages[:2]
	eng := newEngine(snap, &fakeExtractor{value: "a@b.com"}, &fakeGenerator{reply: "ok"}, "")

	out, turn := eng.Advance(context.Background(), baseDeal("email"), "mi correo es a@b.com")
	if out.StageID != "email" || out.CapturedData["email"] != "a@b.com" {
		t.Fatalf("unexpected deal %+v", out)
	}
	if turn.StageChanged() {
		t.Fatalf("terminal stage must not move")
	}
}

func TestAdvanceNeverMovesStageWithoutRequiredInput(t *testing.T) {
	ex := &fakeExtractor{value: "anything"}
	eng := newEngine(threeStagePipeline(), ex, &fakeGenerator{reply: "ok"}, "")

	out, _ := eng.Advance(context.Background(), baseDeal("greet"), "hola soy ana, a@b.com")
	if out.StageID != "greet" {
		t.Fatalf("expected greet, got %s", out.StageID)
	}
	if ex.calls != 0 {
		t.Fatalf("extractor must not run on stages without required input")
	}
}

func TestAdvanceExtractionMissLeavesStageAndData(t *testing.T) {
	for _, ex := range []*fakeExtractor{
		{err: ports.ErrFieldNotFound},
		{err: errors.New("model timeout")},
		{value: "   "},
	} {
		eng := newEngine(threeStagePipeline(), ex, &fakeGenerator{reply: "¿Me das tu correo?"}, "")
		out, turn := eng.Advance(context.Background(), baseDeal("email"), "hola")
		if out.StageID != "email" {
			t.Fatalf("expected no advance, got %s", out.StageID)
		}
		if _, ok := out.CapturedData["email"]; ok {
			t.Fatalf("no field must be captured")
		}
		if turn.ExtractedField != "" {
			t.Fatalf("unexpected extraction %+v", turn)
		}
	}
}

func TestAdvanceDetectsQuotations(t *testing.T) {
	cases := []struct {
		reply    string
		value    float64
		currency string
	}{
		{"El precio es $450 para ese curso", 450, "USD"},
		{"Cuesta 1,200 MXN", 1200, "MXN"},
		{"¿De qué país nos escribes?", 99, "USD"},
	}
	for _, tc := range cases {
		eng := newEngine(threeStagePipeline(), nil, &fakeGenerator{reply: tc.reply}, "")
		deal := baseDeal("greet")
		deal.Value = 99
		out, _ := eng.Advance(context.Background(), deal, "¿cuánto cuesta?")
		if out.Value != tc.value || out.Currency != tc.currency {
			t.Fatalf("%q: expected %v %s, got %v %s", tc.reply, tc.value, tc.currency, out.Value, out.Currency)
		}
	}
}

func TestAdvanceDetectsCourseInterest(t *testing.T) {
	eng := newEngine(threeStagePipeline(), nil, &fakeGenerator{reply: "ok"}, "")
	out, turn := eng.Advance(context.Background(), baseDeal("greet"), "quiero el curso de diseno grafico")
	if out.CapturedData["selected_course"] != "Diseño Gráfico" || turn.SelectedCourse != "Diseño Gráfico" {
		t.Fatalf("expected course capture, got %v", out.CapturedData)
	}
}

func TestAdvanceHistoryGrowsAndInputIsUntouched(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	eng := newEngine(threeStagePipeline(), nil, gen, "")
	deal := baseDeal("greet")

	out, _ := eng.Advance(context.Background(), deal, "hola")
	if len(out.ChatHistory) != 3 {
		t.Fatalf("expected user and agent messages appended, got %d", len(out.ChatHistory))
	}
	if out.ChatHistory[1].Role != domain.RoleUser || out.ChatHistory[2].Role != domain.RoleAgent {
		t.Fatalf("unexpected roles %+v", out.ChatHistory)
	}
	if len(deal.ChatHistory) != 1 {
		t.Fatalf("input deal mutated")
	}
	if len(gen.lastHistory) != 1 || gen.lastMessage != "hola" {
		t.Fatalf("generator must see prior history and the new message separately")
	}
	if !out.LastInteraction.Equal(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("last interaction not refreshed")
	}

	prev := len(out.ChatHistory)
	eng = newEngine(threeStagePipeline(), nil, &fakeGenerator{err: errors.New("down")}, "")
	out, _ = eng.Advance(context.Background(), out, "sigues ahi?")
	if len(out.ChatHistory) < prev {
		t.Fatalf("history shrank")
	}
}

func TestAdvanceGenerationFailureUsesFallbackWithoutQuotation(t *testing.T) {
	eng := newEngine(threeStagePipeline(), &fakeExtractor{value: "a@b.com"}, &fakeGenerator{err: errors.New("quota")}, "Reintenta, cuesta $50 probar")
	deal := baseDeal("email")
	deal.Value = 10

	out, turn := eng.Advance(context.Background(), deal, "a@b.com")
	if turn.ReplySource != ReplyFromFallback {
		t.Fatalf("expected fallback, got %s", turn.ReplySource)
	}
	last := out.ChatHistory[len(out.ChatHistory)-1]
	if last.Role != domain.RoleAgent || last.Text != "Reintenta, cuesta $50 probar" {
		t.Fatalf("unexpected last message %+v", last)
	}
	if out.Value != 10 || turn.Quotation != nil {
		t.Fatalf("fallback must not be scanned for prices")
	}
	if out.StageID != "pitch" {
		t.Fatalf("extraction progress must survive a failed reply")
	}
}

func TestAdvanceGenerationFailureWithoutFallbackAppendsNothing(t *testing.T) {
	eng := newEngine(threeStagePipeline(), nil, nil, "")
	out, turn := eng.Advance(context.Background(), baseDeal("greet"), "hola")
	if len(out.ChatHistory) != 2 || turn.ReplySource != ReplyNone {
		t.Fatalf("expected only the user message, got %d (%s)", len(out.ChatHistory), turn.ReplySource)
	}
}

func TestAdvanceDanglingStageSkipsExtraction(t *testing.T) {
	ex := &fakeExtractor{value: "x"}
	eng := newEngine(threeStagePipeline(), ex, &fakeGenerator{reply: "ok"}, "")
	out, _ := eng.Advance(context.Background(), baseDeal("deleted-stage"), "hola")
	if out.StageID != "deleted-stage" || ex.calls != 0 {
		t.Fatalf("dangling stage must be a no-op, got %s calls=%d", out.StageID, ex.calls)
	}
	if len(out.ChatHistory) != 3 {
		t.Fatalf("conversation must continue")
	}
}

func TestAdvanceUndefinedFieldSkipsExtraction(t *testing.T) {
	snap := threeStagePipeline()
	snap.Properties = nil
	ex := &fakeExtractor{value: "a@b.com"}
	eng := newEngine(snap, ex, &fakeGenerator{reply: "ok"}, "")
	out, _ := eng.Advance(context.Background(), baseDeal("email"), "a@b.com")
	if out.StageID != "email" || ex.calls != 0 {
		t.Fatalf("undefined field must be a no-op")
	}
}

func TestAdvanceCatalogFailureStillReplies(t *testing.T) {
	eng := New(fakeCatalog{err: errors.New("db down")}, nil, &fakeGenerator{reply: "hola"}, Config{}, logger.New("test"))
	out, turn := eng.Advance(context.Background(), baseDeal("greet"), "hola")
	if turn.ReplySource != ReplyFromModel || len(out.ChatHistory) != 3 {
		t.Fatalf("unexpected turn %+v", turn)
	}
}
