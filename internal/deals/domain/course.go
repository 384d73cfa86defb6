package domain

import (
	"strings"
	"unicode"

	catalog "salesflow_backend/internal/catalog/domain"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize strips combining marks and lowercases, so "Diseño Gráfico"
// compares equal to "diseno grafico".
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// DetectCourse returns the first course, in catalog order, whose name or
// SKU appears in text. Empty names and SKUs never match.
func DetectCourse(text string, courses []catalog.Course) (catalog.Course, bool) {
	msg := Normalize(text)
	if msg == "" {
		return catalog.Course{}, false
	}
	for _, c := range courses {
		if name := Normalize(strings.TrimSpace(c.Name)); name != "" && strings.Contains(msg, name) {
			return c, true
		}
		if sku := Normalize(strings.TrimSpace(c.SKU)); sku != "" && strings.Contains(msg, sku) {
			return c, true
		}
	}
	return catalog.Course{}, false
}
