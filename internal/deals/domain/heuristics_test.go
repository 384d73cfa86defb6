package domain

import (
	"encoding/json"
	"testing"
	"time"

	catalog "salesflow_backend/internal/catalog/domain"
)

func TestDetectQuotation(t *testing.T) {
	cases := []struct {
		name     string
		text     string
		ok       bool
		amount   float64
		currency string
	}{
		{"dollar sign", "El precio es $450 para ese curso", true, 450, ""},
		{"code with thousands", "Cuesta 1,200 MXN", true, 1200, "MXN"},
		{"code lowercase", "son 350 usd al mes", true, 350, "USD"},
		{"code wins over dollar", "Antes $999, ahora 800 COP", true, 800, "COP"},
		{"dollar with space and trailing dot", "Total: $ 1,500.", true, 1500, ""},
		{"decimals", "Precio final 99.90 EUR", true, 99.9, "EUR"},
		{"no numbers", "Hola, ¿en qué país estás?", false, 0, ""},
		{"zero amount", "Inscripción $0", false, 0, ""},
		{"code prefix of word", "tenemos 3 eurodiputados", false, 0, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, ok := DetectQuotation(tc.text)
			if ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v (%+v)", tc.ok, ok, q)
			}
			if !ok {
				return
			}
			if q.Amount != tc.amount || q.Currency != tc.currency {
				t.Fatalf("expected %v %q, got %v %q", tc.amount, tc.currency, q.Amount, q.Currency)
			}
		})
	}
}

func TestApplyQuotationKeepsCurrencyForBareDollar(t *testing.T) {
	d := Deal{Value: 10, Currency: "PEN"}
	d.ApplyQuotation(Quotation{Amount: 450})
	if d.Value != 450 || d.Currency != "PEN" {
		t.Fatalf("unexpected deal %+v", d)
	}
	d.ApplyQuotation(Quotation{Amount: 1200, Currency: "MXN"})
	if d.Value != 1200 || d.Currency != "MXN" {
		t.Fatalf("unexpected deal %+v", d)
	}
}

func TestDetectCourseIgnoresDiacriticsAndCase(t *testing.T) {
	courses := []catalog.Course{
		{SKU: "PY-01", Name: "Python Avanzado"},
		{SKU: "DG-01", Name: "Diseño Gráfico"},
	}
	c, ok := DetectCourse("quiero el curso de diseno grafico", courses)
	if !ok || c.Name != "Diseño Gráfico" {
		t.Fatalf("expected Diseño Gráfico, got %+v ok=%v", c, ok)
	}

	c, ok = DetectCourse("info del py-01 por favor", courses)
	if !ok || c.SKU != "PY-01" {
		t.Fatalf("expected sku match, got %+v", c)
	}
}

func TestDetectCourseFirstMatchInCatalogOrder(t *testing.T) {
	courses := []catalog.Course{
		{SKU: "A", Name: "Marketing"},
		{SKU: "B", Name: "Marketing Digital"},
	}
	c, ok := DetectCourse("me interesa marketing digital", courses)
	if !ok || c.SKU != "A" {
		t.Fatalf("expected first catalog match, got %+v", c)
	}
}

func TestDetectCourseEmptyKeysNeverMatch(t *testing.T) {
	if _, ok := DetectCourse("hola", []catalog.Course{{SKU: "", Name: "  "}}); ok {
		t.Fatalf("empty course must not match")
	}
}

func TestRenderScriptReplacesEveryOccurrence(t *testing.T) {
	got := RenderScript("Hola {customer_name}! Soy {bot_name}. {customer_name}, ¿seguimos? {otro}",
		ScriptVars{BotName: "VentasBot", CustomerName: "Ana"})
	want := "Hola Ana! Soy VentasBot. Ana, ¿seguimos? {otro}"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRoleAcceptsModelAlias(t *testing.T) {
	var msg ChatMessage
	if err := json.Unmarshal([]byte(`{"id":"m1","role":"model","text":"hola"}`), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Role != RoleAgent {
		t.Fatalf("expected agent, got %q", msg.Role)
	}
	if err := json.Unmarshal([]byte(`{"role":"system"}`), &msg); err == nil {
		t.Fatalf("expected unknown role error")
	}
}

func TestCloneIsDeep(t *testing.T) {
	d := Deal{ChatHistory: []ChatMessage{{ID: "1"}}, CapturedData: map[string]string{"a": "1"}}
	c := d.Clone()
	c.ChatHistory[0].ID = "x"
	c.CapturedData["a"] = "2"
	if d.ChatHistory[0].ID != "1" || d.CapturedData["a"] != "1" {
		t.Fatalf("clone shares state with original")
	}
}

func TestIsStagnant(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	d := Deal{LastInteraction: now.Add(-25 * time.Hour)}
	if !d.IsStagnant(now, 24*time.Hour) {
		t.Fatalf("expected stagnant")
	}
	if d.IsStagnant(now, 0) {
		t.Fatalf("zero threshold disables stagnation")
	}
}
