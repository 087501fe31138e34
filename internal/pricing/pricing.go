package pricing

import (
	"errors"
	"fmt"
	"strings"

	"pos-checkout/internal/cart"
	"pos-checkout/internal/currency"

	"github.com/shopspring/decimal"
)

// ErrUnknownDiscountKind is returned by ParseDiscount for an unrecognised kind
var ErrUnknownDiscountKind = errors.New("unknown discount kind")

// Kind enumerates the discount variants
type Kind int

const (
	KindNone Kind = iota
	KindPercentage
	KindFixed
)

func (k Kind) String() string {
	switch k {
	case KindPercentage:
		return "percentage"
	case KindFixed:
		return "amount"
	default:
		return "none"
	}
}

// Discount is a tagged variant: no discount, a percentage of the subtotal,
// or a fixed amount. Values are never negative.
type Discount struct {
	kind  Kind
	value decimal.Decimal
}

// NoDiscount is the zero discount
func NoDiscount() Discount {
	return Discount{kind: KindNone}
}

// Percentage discounts pct percent of the subtotal
func Percentage(pct decimal.Decimal) Discount {
	return Discount{kind: KindPercentage, value: nonNegative(pct)}
}

// Fixed discounts a fixed amount
func Fixed(amount decimal.Decimal) Discount {
	return Discount{kind: KindFixed, value: nonNegative(amount)}
}

// ParseDiscount builds a discount from form input. Empty or non-numeric
// values are a zero discount of the requested kind.
func ParseDiscount(kind, raw string) (Discount, error) {
	v := currency.Parse(raw)
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "none":
		return NoDiscount(), nil
	case "percentage", "percent":
		return Percentage(v), nil
	case "amount", "fixed":
		return Fixed(v), nil
	default:
		return NoDiscount(), fmt.Errorf("%w: %q", ErrUnknownDiscountKind, kind)
	}
}

// Kind returns the variant tag
func (d Discount) Kind() Kind {
	return d.kind
}

// Value returns the variant payload
func (d Discount) Value() decimal.Decimal {
	return d.value
}

// Amount is the discount applied to subtotal, clamped to [0, subtotal]
func (d Discount) Amount(subtotal decimal.Decimal) decimal.Decimal {
	var raw decimal.Decimal
	switch d.kind {
	case KindPercentage:
		raw = currency.Percent(subtotal, d.value)
	case KindFixed:
		raw = d.value
	case KindNone:
		raw = decimal.Zero
	}
	return currency.Clamp(raw, decimal.Zero, subtotal)
}

func nonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

// Totals are the derived amounts of a cart
type Totals struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	DisplayTax     decimal.Decimal `json:"display_tax"`
	PayableTotal   decimal.Decimal `json:"payable_total"`
}

// Engine derives totals from cart lines and a discount
type Engine struct {
	taxRate decimal.Decimal
}

// NewEngine creates a pricing engine. taxRate is informational only.
func NewEngine(taxRate decimal.Decimal) *Engine {
	return &Engine{taxRate: taxRate}
}

// TaxRate returns the display tax rate
func (e *Engine) TaxRate() decimal.Decimal {
	return e.taxRate
}

// Compute recomputes every total from scratch. Display tax is never part of
// the payable total.
func (e *Engine) Compute(items []cart.LineItem, discount Discount) Totals {
	lines := make([]decimal.Decimal, len(items))
	for i, it := range items {
		lines[i] = currency.LineTotal(it.UnitPrice, it.Quantity)
	}
	subtotal := currency.Sum(lines...)

	discountAmount := discount.Amount(subtotal)
	payable := subtotal.Sub(discountAmount)

	return Totals{
		Subtotal:       subtotal,
		DiscountAmount: discountAmount,
		DisplayTax:     currency.Tax(payable, e.taxRate),
		PayableTotal:   payable,
	}
}

// LineTax is the display tax of a single line
func (e *Engine) LineTax(it cart.LineItem) decimal.Decimal {
	return currency.Tax(currency.LineTotal(it.UnitPrice, it.Quantity), e.taxRate)
}
