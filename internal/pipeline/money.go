package pipeline

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var moneyPrinter = message.NewPrinter(language.AmericanEnglish)

// formatAmount renders amount the way the outbound-mail subject and body
// need: grouped thousands, two decimal places, currency-coded symbol. No
// currency-formatting library exists anywhere in the retrieved pack, so
// this leans on golang.org/x/text/number (already a direct dependency via
// vendormatch's normalizer) rather than hand-rolling comma grouping.
func formatAmount(amount float64, currencyCode string) string {
	grouped := moneyPrinter.Sprintf("%v", number.Decimal(amount, number.MaxFractionDigits(2), number.MinFractionDigits(2)))
	return currencySymbol(currencyCode) + grouped
}

func currencySymbol(code string) string {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "", "USD":
		return "$"
	case "EUR":
		return "€"
	case "CAD":
		return "CA$"
	default:
		return strings.ToUpper(code) + " "
	}
}
