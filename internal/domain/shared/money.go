package shared

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MoneyScale is the number of fractional digits every amount carries
const MoneyScale int32 = 2

// RoundMoney rounds d half away from zero to MoneyScale digits
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// ParseMoney parses a decimal string and rounds it to MoneyScale digits
func ParseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, NewValidationError("INVALID_AMOUNT", "Amount is not a valid decimal: "+s)
	}
	return RoundMoney(d), nil
}

// MustMoney parses s and panics on malformed input; for tests and constants
func MustMoney(s string) decimal.Decimal {
	d, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FormatMoney renders d with exactly MoneyScale fractional digits
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyScale)
}

// DisplayMoney renders d with locale digit grouping, e.g. "1,234,567.89" for English.
// The integer part goes through the printer as an int64 so no float conversion
// touches the value.
func DisplayMoney(tag language.Tag, d decimal.Decimal) string {
	fixed := FormatMoney(d.Abs())
	intPart, frac, _ := strings.Cut(fixed, ".")
	whole, err := decimal.NewFromString(intPart)
	if err != nil {
		return FormatMoney(d)
	}
	p := message.NewPrinter(tag)
	out := p.Sprintf("%d", whole.IntPart()) + "." + frac
	if d.IsNegative() {
		return "-" + out
	}
	return out
}
