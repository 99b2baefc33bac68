package client

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/senseease/senseease/pkg/types"
)

// Totals is the derived pricing snapshot returned with every cart.
type Totals struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	ItemCount int             `json:"item_count"`
	Tax       decimal.Decimal `json:"tax"`
	Shipping  decimal.Decimal `json:"shipping"`
	Discount  decimal.Decimal `json:"discount"`
	Total     decimal.Decimal `json:"total"`
}

// Line is one cart line.
type Line struct {
	ID               string            `json:"id"`
	ProductID        string            `json:"product_id"`
	Quantity         int               `json:"quantity"`
	UnitPrice        decimal.Decimal   `json:"unit_price"`
	VariantModifiers []decimal.Decimal `json:"variant_modifiers,omitempty"`
	LineTotal        decimal.Decimal   `json:"line_total"`
}

// Coupon is a coupon as sent to and returned by the server.
type Coupon struct {
	Code   string          `json:"code"`
	Kind   string          `json:"kind"` // "percentage" | "fixed"
	Amount decimal.Decimal `json:"amount"`
}

// Cart is a cart with its lines, coupons and totals.
type Cart struct {
	ID      string   `json:"id"`
	Lines   []Line   `json:"lines"`
	Coupons []Coupon `json:"coupons"`
	Totals  Totals   `json:"totals"`
}

// Item is the body of an add-item or quote line.
type Item struct {
	ProductID        string            `json:"product_id"`
	Quantity         int               `json:"quantity"`
	UnitPrice        decimal.Decimal   `json:"unit_price"`
	VariantModifiers []decimal.Decimal `json:"variant_modifiers,omitempty"`
}

// QuoteRequest prices lines and coupons without storing a cart.
type QuoteRequest struct {
	Lines   []Item   `json:"lines"`
	Coupons []Coupon `json:"coupons,omitempty"`
}

// Quote is the result of a quote request.
type Quote struct {
	Lines  []Line `json:"lines"`
	Totals Totals `json:"totals"`
}

// Hint explains one contributor to a stress score.
type Hint struct {
	Key    string   `json:"key"`
	Level  string   `json:"level"`
	Title  string   `json:"title"`
	Detail string   `json:"detail"`
	Value  *float64 `json:"value,omitempty"`
}

// Stress is a session's stress evaluation.
type Stress struct {
	SessionID   string  `json:"session_id"`
	Score       float64 `json:"score"`
	Level       string  `json:"level"`
	EventCount  int     `json:"event_count"`
	Calming     bool    `json:"calming"`
	Hints       []Hint  `json:"hints"`
	EvaluatedAt string  `json:"evaluated_at"`
}

// RecordResult is returned after events are recorded.
type RecordResult struct {
	Recorded int    `json:"recorded"`
	Evicted  int    `json:"evicted"`
	Stress   Stress `json:"stress"`
}

// Events is a session's interaction log.
type Events struct {
	SessionID string                   `json:"session_id"`
	Count     int                      `json:"count"`
	Events    []types.InteractionEvent `json:"events"`
}

// Preferences are a user's accessibility settings.
type Preferences struct {
	FontScale       float64 `json:"font_scale"`
	HighContrast    bool    `json:"high_contrast"`
	ReducedMotion   bool    `json:"reduced_motion"`
	DyslexicFont    bool    `json:"dyslexic_font"`
	CalmingMode     bool    `json:"calming_mode"`
	StressDetection bool    `json:"stress_detection"`
	ColorScheme     string  `json:"color_scheme"`
}

// PreferencesPatch is a partial preferences update. Nil fields are left
// unchanged.
type PreferencesPatch struct {
	FontScale       *float64 `json:"font_scale,omitempty"`
	HighContrast    *bool    `json:"high_contrast,omitempty"`
	ReducedMotion   *bool    `json:"reduced_motion,omitempty"`
	DyslexicFont    *bool    `json:"dyslexic_font,omitempty"`
	CalmingMode     *bool    `json:"calming_mode,omitempty"`
	StressDetection *bool    `json:"stress_detection,omitempty"`
	ColorScheme     *string  `json:"color_scheme,omitempty"`
}

// Alert is a calming alert as listed by the server.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	SessionID  string     `json:"session_id"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`
}
