package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestLineTotalAndSum(t *testing.T) {
	assert.True(t, LineTotal(d("2.50"), 3).Equal(d("7.5")))
	assert.True(t, LineTotal(d("9.99"), 0).IsZero())
	assert.True(t, Sum(d("1.10"), d("2.20"), d("3.30")).Equal(d("6.6")))
	assert.True(t, Sum().IsZero())
}

func TestClamp(t *testing.T) {
	assert.True(t, Clamp(d("150"), decimal.Zero, d("100")).Equal(d("100")))
	assert.True(t, Clamp(d("-5"), decimal.Zero, d("100")).IsZero())
	assert.True(t, Clamp(d("42"), decimal.Zero, d("100")).Equal(d("42")))
}

func TestParse(t *testing.T) {
	assert.True(t, Parse("").IsZero())
	assert.True(t, Parse("abc").IsZero())
	assert.True(t, Parse("  12.5 ").Equal(d("12.5")))
}

func TestTaxIsExact(t *testing.T) {
	assert.Equal(t, "8.1", Tax(d("45"), d("0.18")).String())
}

func TestChange(t *testing.T) {
	assert.True(t, Change(d("50"), d("45")).Equal(d("5")))
	assert.True(t, Change(d("40"), d("45")).IsNegative())
}

func TestPoints(t *testing.T) {
	assert.Equal(t, int64(4), Points(d("459.99"), d("0.01")))
	assert.Equal(t, int64(0), Points(d("-10"), d("0.01")))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "45.00", Format(d("45")))
	assert.Equal(t, "0.13", Format(d("0.125")))
}
