package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// KnownCurrencies are the codes recognized after an amount.
var KnownCurrencies = []string{"COP", "MXN", "USD", "EUR", "PEN", "ARS", "CLP", "BRL"}

var (
	codePattern   = regexp.MustCompile(`(?i)([\d,.]+)\s?(` + strings.Join(KnownCurrencies, "|") + `)\b`)
	dollarPattern = regexp.MustCompile(`\$\s?([\d,.]+)`)
	leadingNumber = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)`)
)

// Quotation is a price found in an agent reply. Currency is empty when
// only a bare "$" amount was found.
type Quotation struct {
	Amount   float64
	Currency string
}

// DetectQuotation scans text for a price. An amount followed by a known
// currency code wins over a "$" amount; only the first match of the winning
// pattern is considered. Commas are thousands separators. Amounts that do
// not parse or are not positive yield no quotation.
func DetectQuotation(text string) (Quotation, bool) {
	var raw, currency string
	if m := codePattern.FindStringSubmatch(text); m != nil {
		raw, currency = m[1], strings.ToUpper(m[2])
	} else if m := dollarPattern.FindStringSubmatch(text); m != nil {
		raw = m[1]
	} else {
		return Quotation{}, false
	}

	amount, ok := parseAmount(raw)
	if !ok || amount <= 0 {
		return Quotation{}, false
	}
	return Quotation{Amount: amount, Currency: currency}, true
}

// parseAmount reads the longest leading decimal number, so "1.200.000"
// yields 1.2 and "450." yields 450.
func parseAmount(raw string) (float64, bool) {
	num := leadingNumber.FindString(strings.ReplaceAll(raw, ",", ""))
	if num == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(num, "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ApplyQuotation overwrites the deal's value, and its currency when the
// quotation carries one.
func (d *Deal) ApplyQuotation(q Quotation) {
	d.Value = q.Amount
	if q.Currency != "" {
		d.Currency = q.Currency
	}
}
