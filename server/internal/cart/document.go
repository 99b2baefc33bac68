package cart

import (
	"github.com/shopspring/decimal"

	"github.com/senseease/senseease/server/internal/pricing"
)

// Document is the persisted form of a cart. Totals are not stored; they are
// recomputed when the document is loaded.
type Document struct {
	ID      string           `json:"id"`
	Lines   []Line           `json:"lines"`
	Coupons []CouponDocument `json:"coupons"`
}

// CouponDocument is the persisted form of an applied coupon.
type CouponDocument struct {
	Code   string             `json:"code"`
	Kind   pricing.CouponKind `json:"kind"`
	Amount decimal.Decimal    `json:"amount"`
}

// Document returns the persisted form of c.
func (c *Cart) Document() Document {
	doc := Document{ID: c.id, Lines: c.Lines(), Coupons: make([]CouponDocument, 0, len(c.coupons))}
	for _, cp := range c.coupons {
		doc.Coupons = append(doc.Coupons, CouponDocument{Code: cp.Code, Kind: cp.Kind, Amount: cp.Amount})
	}
	return doc
}

// FromDocument rebuilds a cart from its persisted form and prices it under policy.
func FromDocument(doc Document, policy pricing.Policy) *Cart {
	c := New(doc.ID, policy)
	for _, l := range doc.Lines {
		c.lines = append(c.lines, l.clone())
	}
	for _, cp := range doc.Coupons {
		c.coupons = append(c.coupons, pricing.Coupon{Code: cp.Code, Kind: cp.Kind, Amount: cp.Amount})
	}
	c.recompute()
	return c
}
