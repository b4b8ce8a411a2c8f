// Package money parses the amounts printed in scholarship reports and formats
// them as Peruvian soles. Arithmetic stays in shopspring/decimal; go-money is
// used for minor-unit storage and display.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currency codes (ISO-4217)
const (
	PEN = "PEN" // Peruvian Sol
	USD = "USD" // US Dollar
)

// ErrInvalidAmount is returned when a cell cannot be read as an amount.
var ErrInvalidAmount = errors.New("invalid amount")

// Money represents a monetary value with currency.
type Money struct {
	m *money.Money
}

// New creates Money from minor units (céntimos for PEN).
func New(amountCents int64, currencyCode string) *Money {
	return &Money{m: money.New(amountCents, currencyCode)}
}

// NewFromDecimal creates Money from a decimal value, rounding to the currency's
// minor unit.
func NewFromDecimal(amount decimal.Decimal, currencyCode string) *Money {
	currency := money.GetCurrency(currencyCode)
	if currency == nil {
		currency = money.GetCurrency(PEN)
		currencyCode = PEN
	}
	multiplier := decimal.New(1, int32(currency.Fraction))
	return New(amount.Mul(multiplier).Round(0).IntPart(), currencyCode)
}

// Zero returns a zero amount.
func Zero(currencyCode string) *Money {
	return New(0, currencyCode)
}

// Amount returns the value in minor units.
func (m *Money) Amount() int64 {
	if m == nil || m.m == nil {
		return 0
	}
	return m.m.Amount()
}

// Currency returns the ISO code.
func (m *Money) Currency() string {
	if m == nil || m.m == nil {
		return ""
	}
	return m.m.Currency().Code
}

// Add returns m + other. Currencies must match.
func (m *Money) Add(other *Money) (*Money, error) {
	if m == nil || other == nil {
		return nil, errors.New("cannot add nil money")
	}
	sum, err := m.m.Add(other.m)
	if err != nil {
		return nil, fmt.Errorf("add: %w", err)
	}
	return &Money{m: sum}, nil
}

// Display returns the amount formatted with the currency symbol.
func (m *Money) Display() string {
	if m == nil || m.m == nil {
		return "0.00"
	}
	return m.m.Display()
}

// String returns the amount as a plain decimal string.
func (m *Money) String() string {
	return m.ToDecimal().StringFixed(2)
}

// ToDecimal converts back to decimal.Decimal.
func (m *Money) ToDecimal() decimal.Decimal {
	if m == nil || m.m == nil {
		return decimal.Zero
	}
	divisor := decimal.New(1, int32(m.m.Currency().Fraction))
	return decimal.NewFromInt(m.m.Amount()).Div(divisor)
}

// FormatPEN renders a decimal amount in soles, e.g. "S/1,234.50".
func FormatPEN(amount decimal.Decimal) string {
	return NewFromDecimal(amount, PEN).Display()
}

// ParseAmount reads an amount as printed in a report cell. Currency symbols,
// spaces and any other non-numeric characters are dropped; the decimal
// separator is inferred: when both "," and "." appear the last one wins, a
// single separator followed by at most two digits is decimal, anything else is
// a thousands separator.
func ParseAmount(raw string) (decimal.Decimal, error) {
	negative := strings.HasPrefix(strings.TrimSpace(raw), "-") ||
		strings.HasPrefix(strings.TrimSpace(raw), "(")
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == ',' || r == '.' {
			return r
		}
		return -1
	}, raw)
	cleaned = strings.Trim(cleaned, ".,")
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	switch sep := decimalSeparator(cleaned); sep {
	case 0:
		cleaned = strings.NewReplacer(",", "", ".", "").Replace(cleaned)
	case ',':
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	case '.':
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// decimalSeparator returns ',' or '.' when that rune separates decimals, 0 when
// every separator groups thousands.
func decimalSeparator(s string) rune {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			return ','
		}
		return '.'
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			return ','
		}
	case lastDot >= 0:
		if strings.Count(s, ".") == 1 && len(s)-lastDot-1 <= 2 {
			return '.'
		}
	}
	return 0
}
