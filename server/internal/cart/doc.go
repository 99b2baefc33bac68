// Package cart implements the shopping cart aggregate.
//
// A Cart owns its lines and applied coupons by value. Every mutation
// (AddItem, UpdateItemQuantity, RemoveItem, ApplyCoupon, RemoveCoupon,
// Clear) recomputes the totals through pricing.Policy before it returns, so
// the stored totals never drift from the lines they were derived from.
//
// Policies for missing targets:
//   - RemoveItem and RemoveCoupon on an unknown id/code are no-ops.
//   - UpdateItemQuantity on an unknown line id returns ErrLineNotFound.
//
// A Cart is not safe for concurrent use; the store serialises access per cart.
package cart
