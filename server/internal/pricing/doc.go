// Package pricing computes cart totals from line items and coupons.
//
// ComputeTotals is a pure function: the same lines and coupons always yield
// the same Totals, and it is re-run after every cart mutation rather than
// maintained incrementally.
//
//	subtotal = Σ (unit_price + Σ variant_modifiers) × quantity
//	tax      = round(subtotal × 0.085, 2)
//	shipping = 0 if subtotal ≥ 35.00, else 5.99
//	discount = round(Σ coupon discounts, 2)   // each computed off subtotal
//	total    = max(0, round(subtotal + tax + shipping − discount, 2))
//
// All money is shopspring/decimal and every derived value is rounded to two
// places, half away from zero, at the step where it is derived.
package pricing
