package pdfextract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Fields is the extraction result. Any field may be empty/zero; an
// empty VendorNameCandidate signals the caller to fall through to the LLM
// step.
type Fields struct {
	VendorNameCandidate string
	Amount              float64
	Currency            string
	DueDate             time.Time
	PaymentTerms        string
}

var (
	currencyAmountPattern = regexp.MustCompile(`(?i)(USD|EUR|CAD|\$)\s?([0-9][0-9,]*\.?[0-9]{0,2})|([0-9][0-9,]*\.[0-9]{2})\s?(USD|EUR|CAD)`)

	vendorLinePattern = regexp.MustCompile(`(?im)^\s*(?:bill\s*to|remit\s*to|from|vendor)\s*[:\-]\s*(.+)$`)

	termsPattern = regexp.MustCompile(`(?i)(net\s?\d{1,3}|due\s+on\s+receipt|cod\b)`)

	isoDatePattern     = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	mdySlashDatePattern = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	writtenDatePattern  = regexp.MustCompile(`(?i)\b(Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|Jun(?:e)?|Jul(?:y)?|Aug(?:ust)?|Sep(?:tember)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)\.?\s+(\d{1,2}),?\s+(\d{4})\b`)

	dueDateContextPattern = regexp.MustCompile(`(?i)due\s*(?:date)?\s*[:\-]?\s*([^\n]{0,40})`)
)

var monthByName = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// ExtractFields applies regex heuristics to raw extracted PDF text to pull
// out a vendor name, invoice amount and currency, payment terms, and due
// date. It never errors — a
// heuristic that finds nothing just leaves that field zero-valued, so the
// caller can fall back to the LLM or to the domain-fallback matcher.
func ExtractFields(text string) Fields {
	var f Fields

	if m := vendorLinePattern.FindStringSubmatch(text); len(m) == 2 {
		f.VendorNameCandidate = strings.TrimSpace(m[1])
	}

	if amount, currency, ok := extractAmount(text); ok {
		f.Amount = amount
		f.Currency = currency
	}

	if m := termsPattern.FindString(text); m != "" {
		f.PaymentTerms = normalizeTerms(m)
	}

	if due, ok := extractDueDate(text); ok {
		f.DueDate = due
	}

	return f
}

func extractAmount(text string) (float64, string, bool) {
	m := currencyAmountPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, "", false
	}

	var rawCurrency, rawAmount string
	if m[1] != "" {
		rawCurrency, rawAmount = m[1], m[2]
	} else {
		rawAmount, rawCurrency = m[3], m[4]
	}

	amount, err := strconv.ParseFloat(strings.ReplaceAll(rawAmount, ",", ""), 64)
	if err != nil {
		return 0, "", false
	}
	return amount, normalizeCurrency(rawCurrency), true
}

func normalizeCurrency(raw string) string {
	switch strings.ToUpper(raw) {
	case "$":
		return "USD"
	default:
		return strings.ToUpper(raw)
	}
}

func normalizeTerms(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(lower, "net") {
		digits := strings.TrimSpace(strings.TrimPrefix(lower, "net"))
		return fmt.Sprintf("Net %s", digits)
	}
	if lower == "cod" {
		return "COD"
	}
	return "Due on receipt"
}

func extractDueDate(text string) (time.Time, bool) {
	if m := dueDateContextPattern.FindStringSubmatch(text); len(m) == 2 {
		if due, ok := findDateInText(m[1]); ok {
			return due, true
		}
	}
	// No "due date:"-labeled window, or nothing recognizable inside it —
	// fall back to scanning the whole text for any recognizable date.
	return findDateInText(text)
}

func findDateInText(window string) (time.Time, bool) {
	if m := isoDatePattern.FindStringSubmatch(window); m != nil {
		return buildDate(m[1], m[2], m[3])
	}
	if m := mdySlashDatePattern.FindStringSubmatch(window); m != nil {
		return buildDate(m[3], m[1], m[2])
	}
	if m := writtenDatePattern.FindStringSubmatch(window); m != nil {
		month, ok := monthByName[strings.ToLower(m[1][:3])]
		if !ok {
			return time.Time{}, false
		}
		day, err1 := strconv.Atoi(m[2])
		year, err2 := strconv.Atoi(m[3])
		if err1 != nil || err2 != nil {
			return time.Time{}, false
		}
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

func buildDate(yearStr, monthStr, dayStr string) (time.Time, bool) {
	year, err1 := strconv.Atoi(yearStr)
	month, err2 := strconv.Atoi(monthStr)
	day, err3 := strconv.Atoi(dayStr)
	if err1 != nil || err2 != nil || err3 != nil || month < 1 || month > 12 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}
