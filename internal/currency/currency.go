package currency

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LineTotal returns price multiplied by quantity
func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}

// Sum adds up the given amounts
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Clamp bounds v to [lo, hi]. When hi < lo, lo wins.
func Clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.GreaterThan(hi) {
		v = hi
	}
	if v.LessThan(lo) {
		v = lo
	}
	return v
}

// Percent returns pct percent of amount
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}

// Tax returns amount multiplied by rate (rate is a fraction, 0.18 = 18%)
func Tax(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate)
}

// Change returns what is owed back to the customer. Negative means underpaid.
func Change(tendered, total decimal.Decimal) decimal.Decimal {
	return tendered.Sub(total)
}

// Parse reads a user-entered amount. Empty or non-numeric input is zero.
func Parse(raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Points converts a paid total into loyalty points, rounding down
func Points(total, rate decimal.Decimal) int64 {
	p := total.Mul(rate).Floor()
	if p.IsNegative() {
		return 0
	}
	return p.IntPart()
}

// Format renders an amount with two decimal places for display
func Format(d decimal.Decimal) string {
	return d.StringFixed(2)
}
