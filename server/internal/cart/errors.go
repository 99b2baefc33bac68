package cart

import (
	"errors"

	"github.com/senseease/senseease/server/internal/pricing"
)

// Errors returned by cart mutations. All are local validation failures.
var (
	ErrInvalidQuantity = pricing.ErrInvalidQuantity
	ErrInvalidPrice    = pricing.ErrInvalidPrice
	ErrInvalidCoupon   = pricing.ErrInvalidCoupon
	ErrInvalidProduct  = errors.New("invalid product")
	ErrDuplicateCoupon = errors.New("duplicate coupon")
	ErrLineNotFound    = errors.New("line not found")
)
