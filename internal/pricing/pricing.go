// Package pricing derives order totals from line items. All arithmetic is
// decimal; results are rounded once, to two places, at the end.
package pricing

import (
	"fmt"

	"github.com/angelmondragon/schoolorders-backend/pkg/enums"
	"github.com/angelmondragon/schoolorders-backend/pkg/types"
	"github.com/shopspring/decimal"
)

const moneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// Discount is either a flat amount or a percentage of gross.
type Discount struct {
	Mode  enums.DiscountMode
	Value decimal.Decimal
}

func Flat(amount decimal.Decimal) Discount {
	return Discount{Mode: enums.DiscountModeFlat, Value: amount}
}

func Percent(p decimal.Decimal) Discount {
	return Discount{Mode: enums.DiscountModePercent, Value: p}
}

// Validate enforces amount >= 0 for flat and 0 <= p <= 100 for percent.
func (d Discount) Validate() error {
	switch d.Mode {
	case enums.DiscountModeFlat:
		if d.Value.IsNegative() {
			return fmt.Errorf("flat discount must not be negative")
		}
	case enums.DiscountModePercent:
		return ValidatePercent(d.Value)
	default:
		return fmt.Errorf("invalid discount mode %q", d.Mode)
	}
	return nil
}

// ValidatePercent checks 0 <= p <= 100.
func ValidatePercent(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(hundred) {
		return fmt.Errorf("discount percent must be between 0 and 100")
	}
	return nil
}

// Totals are the three persisted money fields.
type Totals struct {
	Gross    decimal.Decimal
	Discount decimal.Decimal
	Net      decimal.Decimal
}

// Gross sums qty times unit price exactly.
func Gross(items types.LineItems) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Subtotal())
	}
	return sum
}

// Calculate derives totals. In flat mode the discount is capped at gross so
// net never goes below zero, and per-category percentages are ignored. In
// percent mode each category is discounted by its own percentage when one is
// set, otherwise by the order-wide percentage.
func Calculate(items types.LineItems, d Discount, perCategory types.CategoryDiscounts) (Totals, error) {
	if err := d.Validate(); err != nil {
		return Totals{}, err
	}

	gross := Gross(items).Round(moneyPlaces)
	var discount decimal.Decimal

	switch d.Mode {
	case enums.DiscountModeFlat:
		discount = decimal.Min(d.Value, gross)
	case enums.DiscountModePercent:
		subtotals := make(map[string]decimal.Decimal)
		for key, item := range items {
			subtotals[key.Category] = subtotals[key.Category].Add(item.Subtotal())
		}
		raw := decimal.Zero
		for category, subtotal := range subtotals {
			pct := d.Value
			if override, ok := perCategory[category]; ok {
				if err := ValidatePercent(override); err != nil {
					return Totals{}, fmt.Errorf("%s: %w", category, err)
				}
				pct = override
			}
			raw = raw.Add(subtotal.Mul(pct).Div(hundred))
		}
		discount = decimal.Min(raw, gross)
	}

	discount = discount.Round(moneyPlaces)
	return Totals{Gross: gross, Discount: discount, Net: gross.Sub(discount)}, nil
}

// Format renders an amount with exactly two decimals.
func Format(d decimal.Decimal) string {
	return d.StringFixed(moneyPlaces)
}

// ClientTotals are totals as reported by a client; nil fields were not sent.
type ClientTotals struct {
	Gross    *decimal.Decimal
	Discount *decimal.Decimal
	Net      *decimal.Decimal
}

// Mismatches lists the fields where client and server disagree by more than tolerance.
func Mismatches(server Totals, client ClientTotals, tolerance decimal.Decimal) []string {
	var out []string
	check := func(name string, want decimal.Decimal, got *decimal.Decimal) {
		if got != nil && want.Sub(*got).Abs().GreaterThan(tolerance) {
			out = append(out, name)
		}
	}
	check("total_amount", server.Gross, client.Gross)
	check("total_discount", server.Discount, client.Discount)
	check("net_amount", server.Net, client.Net)
	return out
}
