package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	catalog "salesflow_backend/internal/catalog/domain"
)

// BuildSystemPrompt renders the sales agent instructions from the catalog.
// The model has no memory beyond this prompt and the transcript.
func BuildSystemPrompt(snap catalog.Snapshot, now time.Time) string {
	persona := snap.Agent
	if persona.Name == "" {
		persona.Name = catalog.DefaultPersona.Name
	}
	if persona.Tone == "" {
		persona.Tone = catalog.DefaultPersona.Tone
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Eres %s, un asesor comercial de cursos. Tu tono es %s.\n", persona.Name, persona.Tone)
	b.WriteString("Responde siempre en español. No tienes memoria fuera de esta conversación y de la información que sigue.\n")
	fmt.Fprintf(&b, "Fecha actual: %s\n\n", now.Format("2006-01-02"))

	b.WriteString("--- 1. CURSOS ---\n")
	b.WriteString(compactJSON(activeCourses(snap.Courses)))
	b.WriteString("\n\n")

	b.WriteString("--- 2. PRECIOS ---\n")
	b.WriteString("Regla: si un precio tiene promoción vigente para la fecha actual, ofrece el precio promocional y menciona el precio regular.\n")
	writePricing(&b, snap.Pricing, now)
	b.WriteString("\n")

	b.WriteString("--- 3. LINKS DE PAGO ---\n")
	links := snap.ActivePaymentLinks()
	if len(links) == 0 {
		b.WriteString("No hay links de pago activos.\n")
	}
	for _, l := range links {
		fmt.Fprintf(&b, "- %s (%s): %s [%s]", l.SKU, l.Country, l.URL, strings.Join(l.PaymentMethods, ", "))
		if l.Instructions != "" {
			fmt.Fprintf(&b, " Instrucciones: %s", l.Instructions)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString("--- 4. REGLAS DE ADMISIÓN POR PROFESIÓN ---\n")
	writeProfessionRules(&b, snap)
	b.WriteString("\n")

	b.WriteString("--- 5. PIPELINE DE VENTAS ---\n")
	for _, s := range snap.Stages {
		input := s.RequiredInput
		if input == "" {
			input = "Ninguno"
		}
		fmt.Fprintf(&b, "%d. %s: %q (Requiere Input: %s)\n", s.Order, s.Name, s.ScriptTemplate, input)
	}
	b.WriteString("\n")

	b.WriteString("--- 6. PREGUNTAS FRECUENTES ---\n")
	for _, f := range snap.FAQs {
		fmt.Fprintf(&b, "P: %s\nR: %s\n", f.Question, f.Answer)
	}
	b.WriteString("\n")

	b.WriteString("--- 7. PAÍSES ATENDIDOS ---\n")
	for _, c := range snap.ActiveCountries() {
		fmt.Fprintf(&b, "%s %s (%s, %s)\n", c.Flag, c.Name, c.Currency, c.PhonePrefix)
	}
	b.WriteString("\n")

	b.WriteString("--- 8. DATOS DEL CONTACTO A RECOPILAR ---\n")
	for _, p := range snap.Properties {
		fmt.Fprintf(&b, "- %s (%s): %s\n", p.Label, p.Type, p.Description)
	}
	b.WriteString("\n")

	b.WriteString("INSTRUCCIONES:\n")
	b.WriteString("0. Haz una sola pregunta a la vez.\n")
	b.WriteString("1. Sigue el pipeline de ventas en orden y no saltes etapas.\n")
	b.WriteString("2. Usa solo los cursos, precios y links de esta información. Nunca inventes datos.\n")
	b.WriteString("3. Cotiza en la moneda del país del cliente usando el formato \"<monto> <MONEDA>\".\n")
	b.WriteString("4. Verifica las reglas de admisión antes de ofrecer un curso.\n")
	b.WriteString("5. Si el cliente pregunta algo fuera del catálogo, responde con amabilidad y vuelve al proceso.\n")
	b.WriteString("6. Solo comparte links de pago activos del país del cliente.\n")
	b.WriteString("7. Mantén las respuestas breves y naturales.\n")
	b.WriteString("8. Si el cliente no está en un país atendido, infórmale con cortesía.\n")
	return b.String()
}

func activeCourses(courses []catalog.Course) []catalog.Course {
	out := make([]catalog.Course, 0, len(courses))
	for _, c := range courses {
		if c.Status == catalog.CourseActive {
			out = append(out, c)
		}
	}
	return out
}

func writePricing(b *strings.Builder, pricing []catalog.Pricing, now time.Time) {
	listed := false
	for _, p := range pricing {
		if !p.IsActive {
			continue
		}
		listed = true
		if p.PromoActive(now) {
			fmt.Fprintf(b, "- %s (%s): %.2f %s (promoción hasta %s, precio regular %.2f %s)\n",
				p.SKU, p.Country, *p.PromoPrice, p.Currency, p.PromoEndDate, p.Price, p.Currency)
			continue
		}
		fmt.Fprintf(b, "- %s (%s): %.2f %s\n", p.SKU, p.Country, p.Price, p.Currency)
	}
	if !listed {
		b.WriteString("No hay precios configurados.\n")
	}
}

func writeProfessionRules(b *strings.Builder, snap catalog.Snapshot) {
	bySKU := make(map[string][]catalog.ProfessionRule)
	for _, r := range snap.Rules {
		if r.IsAllowed {
			bySKU[r.SKU] = append(bySKU[r.SKU], r)
		}
	}
	for _, c := range activeCourses(snap.Courses) {
		rules := bySKU[c.SKU]
		if len(rules) == 0 {
			fmt.Fprintf(b, "- %s: abierto a cualquier profesión.\n", c.Name)
			continue
		}
		names := make([]string, 0, len(rules))
		for _, r := range rules {
			name, ok := snap.ProfessionName(r.ProfessionID)
			if !ok {
				name = r.ProfessionID
			}
			if r.RequiresCertification {
				name += " [Requiere Cert]"
			}
			if r.Notes != "" {
				name += " (" + r.Notes + ")"
			}
			names = append(names, name)
		}
		fmt.Fprintf(b, "- %s: solo %s.\n", c.Name, strings.Join(names, ", "))
	}
}

func compactJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(raw)
}
