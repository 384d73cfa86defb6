package domain

import (
	"testing"
	"time"
)

func pipeline() Snapshot {
	s := Snapshot{Stages: []Stage{
		{ID: "close", Order: 5, Name: "Cierre"},
		{ID: "greet", Order: 1, Name: "Saludo"},
		{ID: "email", Order: 2, Name: "Email", RequiredInput: "email"},
	}}
	s.Normalize()
	return s
}

func TestNextStageSkipsOrderGaps(t *testing.T) {
	s := pipeline()
	next, ok := s.NextStage("email")
	if !ok || next.ID != "close" {
		t.Fatalf("expected close, got %+v ok=%v", next, ok)
	}
	if _, ok := s.NextStage("close"); ok {
		t.Fatalf("last stage must not have a successor")
	}
	if _, ok := s.NextStage("missing"); ok {
		t.Fatalf("unknown stage must not have a successor")
	}
}

func TestFirstStageIsLowestOrder(t *testing.T) {
	first, ok := pipeline().FirstStage()
	if !ok || first.ID != "greet" {
		t.Fatalf("expected greet, got %+v", first)
	}
	if _, ok := (Snapshot{}).FirstStage(); ok {
		t.Fatalf("empty pipeline has no first stage")
	}
}

func TestNormalizeFillsPersona(t *testing.T) {
	s := pipeline()
	if s.Agent.Name != DefaultPersona.Name || s.Agent.Tone != DefaultPersona.Tone {
		t.Fatalf("expected default persona, got %+v", s.Agent)
	}
	if s.Stages[0].ID != "greet" || s.Stages[2].ID != "close" {
		t.Fatalf("stages not sorted: %+v", s.Stages)
	}
}

func TestPromoWindowIsInclusive(t *testing.T) {
	promo := 80.0
	p := Pricing{Price: 100, PromoPrice: &promo, PromoStartDate: "2026-03-01", PromoEndDate: "2026-03-31"}

	cases := []struct {
		day  string
		want float64
	}{
		{"2026-02-28", 100},
		{"2026-03-01", 80},
		{"2026-03-31", 80},
		{"2026-04-01", 100},
	}
	for _, tc := range cases {
		day, _ := time.Parse("2006-01-02", tc.day)
		if got := p.EffectivePrice(day.Add(15 * time.Hour)); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.day, tc.want, got)
		}
	}
}
