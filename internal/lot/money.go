package lot

import (
	"strings"

	"github.com/shopspring/decimal"
)

var currencySymbols = map[string]string{
	"usd": "$",
	"eur": "€",
	"gbp": "£",
	"brl": "R$",
}

// FormatMinor formata centavos para exibição, ex: 1200 usd -> "$12.00"
func FormatMinor(amount int64, currency string) string {
	v := decimal.New(amount, -2).StringFixed(2)
	if sym, ok := currencySymbols[strings.ToLower(currency)]; ok {
		return sym + v
	}
	if currency == "" {
		return v
	}
	return v + " " + strings.ToUpper(currency)
}
