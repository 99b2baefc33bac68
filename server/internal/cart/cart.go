package cart

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/senseease/senseease/server/internal/pricing"
)

// Line is one line of a cart, identified by a generated ID.
type Line struct {
	ID               string            `json:"id"`
	ProductID        string            `json:"product_id"`
	Quantity         int               `json:"quantity"`
	UnitPrice        decimal.Decimal   `json:"unit_price"`
	VariantModifiers []decimal.Decimal `json:"variant_modifiers,omitempty"`
}

func (l Line) pricingLine() pricing.Line {
	return pricing.Line{
		ProductID:        l.ProductID,
		Quantity:         l.Quantity,
		UnitPrice:        l.UnitPrice,
		VariantModifiers: l.VariantModifiers,
	}
}

func (l Line) clone() Line {
	l.VariantModifiers = append([]decimal.Decimal(nil), l.VariantModifiers...)
	return l
}

// Cart is the cart aggregate. The zero value is not usable; call New.
type Cart struct {
	id      string
	lines   []Line
	coupons []pricing.Coupon
	totals  pricing.Totals
	policy  pricing.Policy
	newID   func() string
}

// New returns an empty cart priced under policy.
func New(id string, policy pricing.Policy) *Cart {
	c := &Cart{id: id, policy: policy, newID: uuid.NewString}
	c.recompute()
	return c
}

// ID returns the cart identifier.
func (c *Cart) ID() string { return c.id }

// Totals returns the totals derived after the last mutation.
func (c *Cart) Totals() pricing.Totals { return c.totals }

// Lines returns a copy of the cart lines in insertion order.
func (c *Cart) Lines() []Line {
	out := make([]Line, len(c.lines))
	for i, l := range c.lines {
		out[i] = l.clone()
	}
	return out
}

// Coupons returns a copy of the applied coupons in application order.
func (c *Cart) Coupons() []pricing.Coupon {
	return append([]pricing.Coupon(nil), c.coupons...)
}

// Clone returns a deep copy of c that shares no mutable state with it.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.lines = c.Lines()
	cp.coupons = c.Coupons()
	return &cp
}

// SetPolicy switches the pricing policy and recomputes totals.
func (c *Cart) SetPolicy(p pricing.Policy) pricing.Totals {
	c.policy = p
	return c.recompute()
}

// AddItem adds qty units of productID. If a line with the same product and
// an identical variant list (same values, same order) exists, its quantity
// grows; otherwise a new line is appended.
func (c *Cart) AddItem(productID string, qty int, unitPrice decimal.Decimal, variants []decimal.Decimal) (pricing.Totals, error) {
	if productID == "" {
		return c.totals, fmt.Errorf("add item: %w: product id is required", ErrInvalidProduct)
	}
	candidate := Line{
		ProductID:        productID,
		Quantity:         qty,
		UnitPrice:        unitPrice,
		VariantModifiers: append([]decimal.Decimal(nil), variants...),
	}
	if err := pricing.ValidateLine(candidate.pricingLine()); err != nil {
		return c.totals, fmt.Errorf("add item %q: %w", productID, err)
	}

	for i := range c.lines {
		if c.lines[i].ProductID == productID && sameVariants(c.lines[i].VariantModifiers, variants) {
			c.lines[i].Quantity += qty
			return c.recompute(), nil
		}
	}

	candidate.ID = c.newID()
	c.lines = append(c.lines, candidate)
	return c.recompute(), nil
}

// UpdateItemQuantity sets the quantity of lineID. A quantity of zero or less
// removes the line. An unknown lineID returns ErrLineNotFound.
func (c *Cart) UpdateItemQuantity(lineID string, qty int) (pricing.Totals, error) {
	i := c.lineIndex(lineID)
	if i < 0 {
		return c.totals, fmt.Errorf("update quantity: %w: %q", ErrLineNotFound, lineID)
	}
	if qty <= 0 {
		c.lines = append(c.lines[:i], c.lines[i+1:]...)
	} else {
		c.lines[i].Quantity = qty
	}
	return c.recompute(), nil
}

// RemoveItem removes lineID if present. Removing an absent line is a no-op.
func (c *Cart) RemoveItem(lineID string) pricing.Totals {
	if i := c.lineIndex(lineID); i >= 0 {
		c.lines = append(c.lines[:i], c.lines[i+1:]...)
	}
	return c.recompute()
}

// ApplyCoupon applies a coupon. A code already present fails with
// ErrDuplicateCoupon; the cart is left unchanged on any error.
func (c *Cart) ApplyCoupon(code string, amount decimal.Decimal, kind pricing.CouponKind) (pricing.Totals, error) {
	if c.couponIndex(code) >= 0 {
		return c.totals, fmt.Errorf("apply coupon: %w: %q", ErrDuplicateCoupon, code)
	}
	cp := pricing.Coupon{Code: code, Kind: kind, Amount: amount}
	if err := pricing.ValidateCoupon(cp); err != nil {
		return c.totals, fmt.Errorf("apply coupon: %w", err)
	}
	c.coupons = append(c.coupons, cp)
	return c.recompute(), nil
}

// RemoveCoupon removes code if present; otherwise it does nothing.
func (c *Cart) RemoveCoupon(code string) pricing.Totals {
	if i := c.couponIndex(code); i >= 0 {
		c.coupons = append(c.coupons[:i], c.coupons[i+1:]...)
	}
	return c.recompute()
}

// Clear empties lines and coupons.
func (c *Cart) Clear() pricing.Totals {
	c.lines = nil
	c.coupons = nil
	return c.recompute()
}

func (c *Cart) recompute() pricing.Totals {
	lines := make([]pricing.Line, len(c.lines))
	for i, l := range c.lines {
		lines[i] = l.pricingLine()
	}
	c.totals = c.policy.ComputeTotals(lines, c.coupons)
	return c.totals
}

func (c *Cart) lineIndex(id string) int {
	for i, l := range c.lines {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func (c *Cart) couponIndex(code string) int {
	for i, cp := range c.coupons {
		if cp.Code == code {
			return i
		}
	}
	return -1
}

// sameVariants compares two modifier lists element by element, in order.
func sameVariants(a, b []decimal.Decimal) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
