package api

import (
	"github.com/shopspring/decimal"

	"github.com/senseease/senseease/pkg/types"
	"github.com/senseease/senseease/server/internal/cart"
	"github.com/senseease/senseease/server/internal/pricing"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status       string             `json:"status"`
	Storage      string             `json:"storage"`
	CartCount    int                `json:"cart_count"`
	SessionCount int                `json:"session_count"`
	AlertCount   int                `json:"alert_count"`
	Counters     map[string]float64 `json:"counters,omitempty"`
}

// TotalsResponse is the JSON form of pricing.Totals. Money values are
// rounded to two places before conversion.
type TotalsResponse struct {
	Subtotal  float64 `json:"subtotal"`
	ItemCount int     `json:"item_count"`
	Tax       float64 `json:"tax"`
	Shipping  float64 `json:"shipping"`
	Discount  float64 `json:"discount"`
	Total     float64 `json:"total"`
}

// LineResponse is one cart line. Quote lines carry no ID.
type LineResponse struct {
	ID               string    `json:"id,omitempty"`
	ProductID        string    `json:"product_id"`
	Quantity         int       `json:"quantity"`
	UnitPrice        float64   `json:"unit_price"`
	VariantModifiers []float64 `json:"variant_modifiers,omitempty"`
	LineTotal        float64   `json:"line_total"`
}

// CouponResponse is one applied coupon.
type CouponResponse struct {
	Code   string  `json:"code"`
	Kind   string  `json:"kind"`
	Amount float64 `json:"amount"`
}

// CartResponse is the payload for every cart endpoint.
type CartResponse struct {
	ID      string           `json:"id"`
	Lines   []LineResponse   `json:"lines"`
	Coupons []CouponResponse `json:"coupons"`
	Totals  TotalsResponse   `json:"totals"`
}

// QuoteRequest is the body of POST /api/v1/quote.
type QuoteRequest struct {
	Lines   []AddItemRequest `json:"lines"`
	Coupons []CouponRequest  `json:"coupons"`
}

// QuoteResponse is the payload for POST /api/v1/quote.
type QuoteResponse struct {
	Lines  []LineResponse `json:"lines"`
	Totals TotalsResponse `json:"totals"`
}

// AddItemRequest is the body of POST /api/v1/carts/{id}/items.
// Prices may be sent as JSON numbers or strings.
type AddItemRequest struct {
	ProductID        string            `json:"product_id"`
	Quantity         int               `json:"quantity"`
	UnitPrice        decimal.Decimal   `json:"unit_price"`
	VariantModifiers []decimal.Decimal `json:"variant_modifiers"`
}

// UpdateItemRequest is the body of PUT /api/v1/carts/{id}/items/{line}.
type UpdateItemRequest struct {
	Quantity int `json:"quantity"`
}

// CouponRequest is the body of POST /api/v1/carts/{id}/coupons.
type CouponRequest struct {
	Code   string             `json:"code"`
	Kind   pricing.CouponKind `json:"kind"`
	Amount decimal.Decimal    `json:"amount"`
}

// RecordResponse is the payload for POST /api/v1/sessions/{id}/events.
type RecordResponse struct {
	Recorded int            `json:"recorded"`
	Evicted  int            `json:"evicted"`
	Stress   StressResponse `json:"stress"`
}

// EventsResponse is the payload for GET /api/v1/sessions/{id}/events.
type EventsResponse struct {
	SessionID string                   `json:"session_id"`
	Count     int                      `json:"count"`
	Events    []types.InteractionEvent `json:"events"`
}

// StressResponse is the payload for GET /api/v1/sessions/{id}/stress and
// the data of every live stream message.
type StressResponse struct {
	SessionID   string       `json:"session_id"`
	Score       float64      `json:"score"`
	Level       string       `json:"level"`
	EventCount  int          `json:"event_count"`
	Calming     bool         `json:"calming"`
	Hints       []StressHint `json:"hints"`
	EvaluatedAt string       `json:"evaluated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

func money(d decimal.Decimal) float64 {
	return pricing.Round(d).InexactFloat64()
}

func toTotalsResponse(t pricing.Totals) TotalsResponse {
	return TotalsResponse{
		Subtotal:  money(t.Subtotal),
		ItemCount: t.ItemCount,
		Tax:       money(t.Tax),
		Shipping:  money(t.Shipping),
		Discount:  money(t.Discount),
		Total:     money(t.Total),
	}
}

func toLineResponse(l cart.Line) LineResponse {
	pl := pricing.Line{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice, VariantModifiers: l.VariantModifiers}
	out := LineResponse{
		ID:        l.ID,
		ProductID: l.ProductID,
		Quantity:  l.Quantity,
		UnitPrice: money(l.UnitPrice),
		LineTotal: money(pl.Effective()),
	}
	for _, m := range l.VariantModifiers {
		out.VariantModifiers = append(out.VariantModifiers, money(m))
	}
	return out
}

func toCartResponse(c *cart.Cart) CartResponse {
	lines := c.Lines()
	out := CartResponse{
		ID:      c.ID(),
		Lines:   make([]LineResponse, 0, len(lines)),
		Coupons: make([]CouponResponse, 0),
		Totals:  toTotalsResponse(c.Totals()),
	}
	for _, l := range lines {
		out.Lines = append(out.Lines, toLineResponse(l))
	}
	for _, cp := range c.Coupons() {
		out.Coupons = append(out.Coupons, CouponResponse{Code: cp.Code, Kind: string(cp.Kind), Amount: cp.Amount.InexactFloat64()})
	}
	return out
}
