package api

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/senseease/senseease/server/internal/cart"
	"github.com/senseease/senseease/server/internal/pricing"
)

// PricedQuote is a QuoteRequest priced under one policy. Lines are in the
// order they were posted.
type PricedQuote struct {
	Lines   []pricing.Line
	Coupons []pricing.Coupon
	Totals  pricing.Totals
}

// PriceQuote validates req and prices it under policy. Lines are priced
// exactly as posted: two lines for the same product are not merged, so
// each keeps its own unit price. Errors wrap the cart sentinels
// (ErrInvalidProduct, ErrDuplicateCoupon) and the pricing validation errors.
func PriceQuote(req QuoteRequest, policy pricing.Policy) (PricedQuote, error) {
	out := PricedQuote{
		Lines:   make([]pricing.Line, 0, len(req.Lines)),
		Coupons: make([]pricing.Coupon, 0, len(req.Coupons)),
	}
	for i, l := range req.Lines {
		if l.ProductID == "" {
			return PricedQuote{}, fmt.Errorf("line %d: %w: product id is required", i, cart.ErrInvalidProduct)
		}
		pl := pricing.Line{
			ProductID:        l.ProductID,
			Quantity:         l.Quantity,
			UnitPrice:        l.UnitPrice,
			VariantModifiers: append([]decimal.Decimal(nil), l.VariantModifiers...),
		}
		if err := pricing.ValidateLine(pl); err != nil {
			return PricedQuote{}, fmt.Errorf("line %d (%q): %w", i, l.ProductID, err)
		}
		out.Lines = append(out.Lines, pl)
	}

	seen := make(map[string]bool, len(req.Coupons))
	for _, c := range req.Coupons {
		if seen[c.Code] {
			return PricedQuote{}, fmt.Errorf("coupon: %w: %q", cart.ErrDuplicateCoupon, c.Code)
		}
		pc := pricing.Coupon{Code: c.Code, Kind: c.Kind, Amount: c.Amount}
		if err := pricing.ValidateCoupon(pc); err != nil {
			return PricedQuote{}, fmt.Errorf("coupon: %w", err)
		}
		seen[c.Code] = true
		out.Coupons = append(out.Coupons, pc)
	}

	out.Totals = policy.ComputeTotals(out.Lines, out.Coupons)
	return out, nil
}

func toQuoteResponse(q PricedQuote) QuoteResponse {
	resp := QuoteResponse{Lines: make([]LineResponse, 0, len(q.Lines)), Totals: toTotalsResponse(q.Totals)}
	for _, l := range q.Lines {
		resp.Lines = append(resp.Lines, toLineResponse(cart.Line{
			ProductID:        l.ProductID,
			Quantity:         l.Quantity,
			UnitPrice:        l.UnitPrice,
			VariantModifiers: l.VariantModifiers,
		}))
	}
	return resp
}
