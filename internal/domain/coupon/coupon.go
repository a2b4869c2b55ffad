// Package coupon holds the discount coupon entity, its invariants, and the
// discount verification logic.
package coupon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no coupon exists for the given ID.
	ErrNotFound = errors.New("coupon not found")
	// ErrDuplicateCode is returned when a write collides with an existing
	// coupon code. Codes are stored uppercased, so the collision is
	// case-insensitive from the caller's point of view.
	ErrDuplicateCode = errors.New("coupon code already exists")
	// ErrInvalidCoupon is returned by Verify when the code does not match
	// any active coupon. Inactive and missing codes are indistinguishable.
	ErrInvalidCoupon = errors.New("invalid or inactive coupon code")
	// ErrNoEligibleItems is returned when a product-specific coupon matches
	// none of the cart's line items. The coupon is rejected outright rather
	// than applying a zero discount.
	ErrNoEligibleItems = errors.New("coupon is not valid for any cart item")
)

// ValidationError reports a missing or out-of-bounds input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Coupon is a discount code record. An empty ValidForProducts list means the
// coupon applies to the whole cart; a non-empty list restricts the discount
// to matching line items.
type Coupon struct {
	ID                 uuid.UUID
	Code               string
	DiscountPercentage decimal.Decimal
	ValidForProducts   []string
	IsActive           bool
	CreatedAt          time.Time
}

// NormalizeCode trims surrounding whitespace and uppercases a coupon code.
// It is applied before every write and every lookup, so code uniqueness is
// effectively case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

var (
	minPercentage = decimal.NewFromInt(1)
	maxPercentage = decimal.NewFromInt(99)
)

// validPercentage reports whether p is within the inclusive [1, 99] range.
func validPercentage(p decimal.Decimal) bool {
	return p.GreaterThanOrEqual(minPercentage) && p.LessThanOrEqual(maxPercentage)
}

// Repository defines persistence operations for coupons. Implementations map
// store-level failures to the sentinel errors above: unique-constraint
// violations to ErrDuplicateCode, missing rows to ErrNotFound, and missing
// active codes to ErrInvalidCoupon.
type Repository interface {
	Create(ctx context.Context, c *Coupon) (*Coupon, error)
	List(ctx context.Context) ([]Coupon, error)
	FindActiveByCode(ctx context.Context, code string) (*Coupon, error)
	UpdateCode(ctx context.Context, id uuid.UUID, code string) (*Coupon, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*Coupon, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
