package shared

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Round2 rounds a currency value to two decimal places. Every derived
// financial field is passed through this before being stored or compared.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var brl = message.NewPrinter(language.BrazilianPortuguese)

// FormatBRL renders an amount the way charge and transfer descriptions show it.
func FormatBRL(v float64) string {
	return brl.Sprintf("R$ %.2f", v)
}
