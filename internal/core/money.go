// Package core provides the budget domain types and money helpers.
//
// Amounts travel as milliunits (thousandths of the budget currency), the unit
// used by the budgeting API. This file converts them for display using
// golang.org/x/text so grouping and symbols follow the currency's locale.
package core

import (
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Milliunits is a signed amount in thousandths of the currency unit.
type Milliunits int64

// Units returns the amount in currency units for display purposes.
// Sums and comparisons stay in Milliunits.
func (m Milliunits) Units() float64 {
	return float64(m) / 1000.0
}

// Abs returns the absolute value.
func (m Milliunits) Abs() Milliunits {
	if m < 0 {
		return -m
	}
	return m
}

// Sign returns "positive", "negative" or "zero"; used as a CSS class.
func (m Milliunits) Sign() string {
	switch {
	case m > 0:
		return "positive"
	case m < 0:
		return "negative"
	default:
		return "zero"
	}
}

// Currency formats milliunit amounts for one ISO currency.
type Currency struct {
	Code    string
	unit    currency.Unit
	printer *message.Printer
}

// defaultLocaleForCurrency picks a "home" locale for number grouping.
var defaultLocaleForCurrency = map[string]language.Tag{
	"USD": language.AmericanEnglish,
	"CAD": language.MustParse("en-CA"),
	"AUD": language.MustParse("en-AU"),
	"NZD": language.MustParse("en-NZ"),
	"GBP": language.BritishEnglish,
	"EUR": language.German,
	"CHF": language.German,
	"SEK": language.Swedish,
	"NOK": language.Norwegian,
	"DKK": language.Danish,
	"JPY": language.Japanese,
}

// NewCurrency returns the formatter for an ISO code. Unknown codes fall back
// to USD number formatting with the code as suffix.
func NewCurrency(code string) Currency {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return Currency{Code: code, printer: message.NewPrinter(language.English)}
	}
	tag, ok := defaultLocaleForCurrency[code]
	if !ok {
		tag = language.English
	}
	return Currency{Code: code, unit: unit, printer: message.NewPrinter(tag)}
}

func (c Currency) symbol() string {
	if c.unit == (currency.Unit{}) {
		return ""
	}
	return c.printer.Sprint(currency.NarrowSymbol(c.unit))
}

// Format renders an amount like "-$1,234.56". The minus sign precedes the
// symbol so negative balances read naturally in a table.
// The zero Currency formats as USD.
func (c Currency) Format(m Milliunits) string {
	if c.printer == nil {
		c = NewCurrency("USD")
	}
	digits := c.printer.Sprint(number.Decimal(m.Abs().Units(),
		number.MinFractionDigits(2), number.MaxFractionDigits(2)))
	sign := ""
	if m < 0 {
		sign = "-"
	}
	sym := c.symbol()
	if sym == "" {
		return sign + digits + " " + c.Code
	}
	return sign + sym + digits
}
