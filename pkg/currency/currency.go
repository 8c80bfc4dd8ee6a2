package currency

import "fmt"

// symbols maps ISO 4217 codes to their display symbol. Codes without an
// entry fall back to the code itself.
var symbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"INR": "₹",
	"IDR": "Rp",
	"JPY": "¥",
	"AUD": "A$",
	"CAD": "C$",
	"SGD": "S$",
}

// Symbol returns the display symbol for a currency code.
func Symbol(code string) string {
	if sym, ok := symbols[code]; ok {
		return sym
	}
	return code
}

// Format renders an amount with its currency symbol and two decimals.
// Display formatting only; engine arithmetic never goes through here.
func Format(amount float64, code string) string {
	return fmt.Sprintf("%s%.2f", Symbol(code), amount)
}
