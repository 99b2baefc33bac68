package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// moneyPlaces is the number of decimal places every currency value carries.
const moneyPlaces = 2

// Validation errors. Callers check them with errors.Is.
var (
	ErrInvalidQuantity = errors.New("invalid quantity")
	ErrInvalidPrice    = errors.New("invalid price")
	ErrInvalidCoupon   = errors.New("invalid coupon")
)

// CouponKind selects how a coupon's Amount is interpreted.
type CouponKind string

const (
	// CouponPercentage discounts Amount percent of the subtotal.
	CouponPercentage CouponKind = "percentage"
	// CouponFixed discounts Amount in currency units.
	CouponFixed CouponKind = "fixed"
)

// Line is one cart line as seen by the pricing engine.
type Line struct {
	ProductID        string
	Quantity         int
	UnitPrice        decimal.Decimal
	VariantModifiers []decimal.Decimal
}

// UnitEffective returns the unit price with all variant modifiers applied.
func (l Line) UnitEffective() decimal.Decimal {
	p := l.UnitPrice
	for _, m := range l.VariantModifiers {
		p = p.Add(m)
	}
	return p
}

// Effective returns (UnitPrice + Σ VariantModifiers) × Quantity.
func (l Line) Effective() decimal.Decimal {
	return l.UnitEffective().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Coupon is a discount applied to a whole cart.
type Coupon struct {
	Code   string
	Kind   CouponKind
	Amount decimal.Decimal
}

// discountOn returns the unrounded discount this coupon grants against subtotal.
// Unknown kinds grant nothing.
func (c Coupon) discountOn(subtotal decimal.Decimal) decimal.Decimal {
	switch c.Kind {
	case CouponPercentage:
		return subtotal.Mul(c.Amount).Shift(-2)
	case CouponFixed:
		return c.Amount
	default:
		return decimal.Zero
	}
}

// Totals is the derived pricing snapshot for a cart.
type Totals struct {
	Subtotal  decimal.Decimal
	ItemCount int
	Tax       decimal.Decimal
	Shipping  decimal.Decimal
	Discount  decimal.Decimal
	Total     decimal.Decimal
}

// Policy holds the tax and shipping rules applied to a subtotal.
type Policy struct {
	// TaxRate is the fraction of the subtotal charged as tax (0.085 = 8.5%).
	TaxRate decimal.Decimal

	// FreeShippingThreshold is the subtotal at or above which shipping is free.
	FreeShippingThreshold decimal.Decimal

	// FlatShipping is charged when the subtotal is below the threshold.
	FlatShipping decimal.Decimal
}

// DefaultPolicy returns the standard storefront policy:
// 8.5% tax, free shipping from 35.00, otherwise a flat 5.99.
func DefaultPolicy() Policy {
	return Policy{
		TaxRate:               decimal.RequireFromString("0.085"),
		FreeShippingThreshold: decimal.RequireFromString("35.00"),
		FlatShipping:          decimal.RequireFromString("5.99"),
	}
}

// ComputeTotals prices lines and coupons under DefaultPolicy.
func ComputeTotals(lines []Line, coupons []Coupon) Totals {
	return DefaultPolicy().ComputeTotals(lines, coupons)
}

// ComputeTotals derives the full Totals for lines and coupons under p.
//
// Percentage coupons are always computed against the pre-discount subtotal,
// so coupon order never matters. The total is clamped at zero.
// Inputs are expected to have passed ValidateLine / ValidateCoupon.
func (p Policy) ComputeTotals(lines []Line, coupons []Coupon) Totals {
	subtotal := decimal.Zero
	items := 0
	for _, l := range lines {
		subtotal = subtotal.Add(l.Effective())
		items += l.Quantity
	}
	subtotal = Round(subtotal)

	tax := Round(subtotal.Mul(p.TaxRate))

	shipping := p.FlatShipping
	if subtotal.GreaterThanOrEqual(p.FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	discount := decimal.Zero
	for _, c := range coupons {
		discount = discount.Add(c.discountOn(subtotal))
	}
	discount = Round(discount)

	total := Round(subtotal.Add(tax).Add(shipping).Sub(discount))
	if total.IsNegative() {
		total = decimal.Zero
	}

	return Totals{
		Subtotal:  subtotal,
		ItemCount: items,
		Tax:       tax,
		Shipping:  Round(shipping),
		Discount:  discount,
		Total:     total,
	}
}

// Round rounds d to two decimal places, half away from zero.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// ValidateLine reports whether l may be priced.
// Quantity must be at least 1; the unit price and the unit price after
// variant modifiers must not be negative.
func ValidateLine(l Line) error {
	if l.Quantity < 1 {
		return fmt.Errorf("%w: %d (must be at least 1)", ErrInvalidQuantity, l.Quantity)
	}
	if l.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price %s is negative", ErrInvalidPrice, l.UnitPrice)
	}
	if eff := l.UnitEffective(); eff.IsNegative() {
		return fmt.Errorf("%w: price after variant modifiers %s is negative", ErrInvalidPrice, eff)
	}
	return nil
}

// ValidateCoupon reports whether c may be applied.
func ValidateCoupon(c Coupon) error {
	if c.Code == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidCoupon)
	}
	if c.Amount.IsNegative() {
		return fmt.Errorf("%w: amount %s is negative", ErrInvalidCoupon, c.Amount)
	}
	switch c.Kind {
	case CouponPercentage:
		if c.Amount.GreaterThan(decimal.NewFromInt(100)) {
			return fmt.Errorf("%w: percentage %s exceeds 100", ErrInvalidCoupon, c.Amount)
		}
	case CouponFixed:
	default:
		return fmt.Errorf("%w: unknown kind %q, want percentage|fixed", ErrInvalidCoupon, c.Kind)
	}
	return nil
}
