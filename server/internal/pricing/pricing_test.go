package pricing

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func line(price string, qty int, mods ...string) Line {
	l := Line{ProductID: "p", Quantity: qty, UnitPrice: d(price)}
	for _, m := range mods {
		l.VariantModifiers = append(l.VariantModifiers, d(m))
	}
	return l
}

// fixed renders a money value the way the API does, so comparisons ignore
// decimal's internal exponent.
func fixed(v decimal.Decimal) string { return v.StringFixed(2) }

func TestComputeTotals_Example(t *testing.T) {
	got := ComputeTotals([]Line{line("10", 2), line("5", 1)}, nil)

	assert.Equal(t, "25.00", fixed(got.Subtotal))
	assert.Equal(t, 3, got.ItemCount)
	assert.Equal(t, "2.13", fixed(got.Tax)) // 2.125 rounds away from zero
	assert.Equal(t, "5.99", fixed(got.Shipping))
	assert.Equal(t, "0.00", fixed(got.Discount))
	assert.Equal(t, "33.12", fixed(got.Total))
}

func TestComputeTotals_Empty(t *testing.T) {
	got := ComputeTotals(nil, nil)

	assert.Equal(t, "0.00", fixed(got.Subtotal))
	assert.Equal(t, 0, got.ItemCount)
	assert.Equal(t, "5.99", fixed(got.Shipping))
	assert.Equal(t, "5.99", fixed(got.Total))
}

func TestComputeTotals_Shipping(t *testing.T) {
	tests := []struct {
		name     string
		lines    []Line
		shipping string
	}{
		{name: "just below threshold", lines: []Line{line("34.99", 1)}, shipping: "5.99"},
		{name: "exactly at threshold", lines: []Line{line("35.00", 1)}, shipping: "0.00"},
		{name: "above threshold", lines: []Line{line("20", 2)}, shipping: "0.00"},
		{name: "variants push over threshold", lines: []Line{line("10", 3, "2.00")}, shipping: "0.00"},
		{name: "variants pull under threshold", lines: []Line{line("12", 3, "-1.00")}, shipping: "5.99"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeTotals(tc.lines, nil)
			assert.Equal(t, tc.shipping, fixed(got.Shipping))
		})
	}
}

func TestComputeTotals_VariantModifiers(t *testing.T) {
	// (10 + 2.50 - 1.00) × 3 = 34.50
	got := ComputeTotals([]Line{line("10", 3, "2.50", "-1.00")}, nil)
	assert.Equal(t, "34.50", fixed(got.Subtotal))
	assert.Equal(t, 3, got.ItemCount)
}

func TestComputeTotals_PercentageCoupon(t *testing.T) {
	got := ComputeTotals(
		[]Line{line("100", 1)},
		[]Coupon{{Code: "TEN", Kind: CouponPercentage, Amount: d("10")}},
	)
	assert.Equal(t, "10.00", fixed(got.Discount))
	// 100 + 8.50 + 0 - 10
	assert.Equal(t, "98.50", fixed(got.Total))
}

func TestComputeTotals_CouponsComputedOffSubtotal(t *testing.T) {
	pct := Coupon{Code: "TEN", Kind: CouponPercentage, Amount: d("10")}
	flat := Coupon{Code: "FIVE", Kind: CouponFixed, Amount: d("5")}

	a := ComputeTotals([]Line{line("100", 1)}, []Coupon{pct, flat})
	b := ComputeTotals([]Line{line("100", 1)}, []Coupon{flat, pct})

	assert.Equal(t, "15.00", fixed(a.Discount), "not compounded")
	assert.Equal(t, fixed(a.Discount), fixed(b.Discount), "order independent")
	assert.Equal(t, fixed(a.Total), fixed(b.Total))
}

func TestComputeTotals_DiscountRounded(t *testing.T) {
	// 15% of 19.99 = 2.9985 -> 3.00
	got := ComputeTotals(
		[]Line{line("19.99", 1)},
		[]Coupon{{Code: "P15", Kind: CouponPercentage, Amount: d("15")}},
	)
	assert.Equal(t, "3.00", fixed(got.Discount))
}

func TestComputeTotals_TaxRoundsHalfAwayFromZero(t *testing.T) {
	// 5.00 × 0.085 = 0.425 -> 0.43
	got := ComputeTotals([]Line{line("5.00", 1)}, nil)
	assert.Equal(t, "0.43", fixed(got.Tax))
}

func TestComputeTotals_TotalClampedAtZero(t *testing.T) {
	got := ComputeTotals(
		[]Line{line("10", 1)},
		[]Coupon{{Code: "BIG", Kind: CouponFixed, Amount: d("1000")}},
	)
	assert.Equal(t, "1000.00", fixed(got.Discount))
	assert.Equal(t, "0.00", fixed(got.Total))
	assert.False(t, got.Total.IsNegative())
}

func TestComputeTotals_CustomPolicy(t *testing.T) {
	p := Policy{
		TaxRate:               d("0.20"),
		FreeShippingThreshold: d("50"),
		FlatShipping:          d("4.00"),
	}
	got := p.ComputeTotals([]Line{line("40", 1)}, nil)
	assert.Equal(t, "8.00", fixed(got.Tax))
	assert.Equal(t, "4.00", fixed(got.Shipping))
	assert.Equal(t, "52.00", fixed(got.Total))
}

func TestComputeTotals_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	threshold := DefaultPolicy().FreeShippingThreshold

	for i := 0; i < 500; i++ {
		var lines []Line
		for n := rng.Intn(5); n > 0; n-- {
			cents := rng.Int63n(5000)
			lines = append(lines, Line{
				ProductID: "p",
				Quantity:  1 + rng.Intn(4),
				UnitPrice: decimal.New(cents, -2),
			})
		}
		var coupons []Coupon
		if rng.Intn(2) == 0 {
			coupons = append(coupons, Coupon{Code: "P", Kind: CouponPercentage, Amount: decimal.NewFromInt(rng.Int63n(101))})
		}
		if rng.Intn(2) == 0 {
			coupons = append(coupons, Coupon{Code: "F", Kind: CouponFixed, Amount: decimal.New(rng.Int63n(20000), -2)})
		}

		first := ComputeTotals(lines, coupons)
		second := ComputeTotals(lines, coupons)

		require.False(t, first.Total.IsNegative(), "total must never be negative")
		require.Equal(t, fixed(first.Total), fixed(second.Total), "deterministic")
		require.Equal(t, fixed(first.Tax), fixed(Round(first.Subtotal.Mul(d("0.085")))))

		if first.Subtotal.GreaterThanOrEqual(threshold) {
			require.True(t, first.Shipping.IsZero())
		} else {
			require.Equal(t, "5.99", fixed(first.Shipping))
		}
	}
}

func TestValidateLine(t *testing.T) {
	tests := []struct {
		name string
		l    Line
		want error
	}{
		{name: "valid", l: line("9.99", 1)},
		{name: "free item", l: line("0", 2)},
		{name: "zero quantity", l: line("1", 0), want: ErrInvalidQuantity},
		{name: "negative quantity", l: line("1", -3), want: ErrInvalidQuantity},
		{name: "negative price", l: line("-1", 1), want: ErrInvalidPrice},
		{name: "modifiers go negative", l: line("1", 1, "-2"), want: ErrInvalidPrice},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateLine(tc.l)
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestValidateCoupon(t *testing.T) {
	tests := []struct {
		name  string
		c     Coupon
		valid bool
	}{
		{name: "percentage", c: Coupon{Code: "A", Kind: CouponPercentage, Amount: d("25")}, valid: true},
		{name: "full percentage", c: Coupon{Code: "A", Kind: CouponPercentage, Amount: d("100")}, valid: true},
		{name: "fixed", c: Coupon{Code: "A", Kind: CouponFixed, Amount: d("5")}, valid: true},
		{name: "missing code", c: Coupon{Kind: CouponFixed, Amount: d("5")}},
		{name: "negative amount", c: Coupon{Code: "A", Kind: CouponFixed, Amount: d("-1")}},
		{name: "percentage over 100", c: Coupon{Code: "A", Kind: CouponPercentage, Amount: d("101")}},
		{name: "unknown kind", c: Coupon{Code: "A", Kind: "bogo", Amount: d("1")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCoupon(tc.c)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidCoupon)
			}
		})
	}
}
