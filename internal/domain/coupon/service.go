package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service implements the coupon lifecycle and verification operations on top
// of a Repository. All input normalization happens here, before anything
// reaches the store.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a Service backed by the given Repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// CreateParams holds the input for creating a coupon.
type CreateParams struct {
	Code               string
	DiscountPercentage decimal.Decimal
	ValidForProducts   []string
}

// Create validates and persists a new coupon. The code is normalized, the
// coupon starts active, and CreatedAt is fixed at creation time.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Coupon, error) {
	code := NormalizeCode(p.Code)
	if code == "" {
		return nil, &ValidationError{Field: "code", Reason: "must not be empty"}
	}
	if !validPercentage(p.DiscountPercentage) {
		return nil, &ValidationError{Field: "discountPercentage", Reason: "must be between 1 and 99"}
	}

	products := p.ValidForProducts
	if products == nil {
		products = []string{}
	}

	c := &Coupon{
		ID:                 uuid.New(),
		Code:               code,
		DiscountPercentage: p.DiscountPercentage,
		ValidForProducts:   products,
		IsActive:           true,
		CreatedAt:          s.now().UTC(),
	}

	created, err := s.repo.Create(ctx, c)
	if err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			return nil, ErrDuplicateCode
		}
		return nil, errors.Wrap(err, "create coupon")
	}
	return created, nil
}

// List returns all stored coupons in store-defined order.
func (s *Service) List(ctx context.Context) ([]Coupon, error) {
	coupons, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list coupons")
	}
	return coupons, nil
}

// UpdateCode rewrites a coupon's code and returns the updated record.
// The new code is normalized and re-checked for uniqueness by the store.
func (s *Service) UpdateCode(ctx context.Context, id uuid.UUID, newCode string) (*Coupon, error) {
	code := NormalizeCode(newCode)
	if code == "" {
		return nil, &ValidationError{Field: "code", Reason: "must not be empty"}
	}

	updated, err := s.repo.UpdateCode(ctx, id, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateCode) {
			return nil, err
		}
		return nil, errors.Wrap(err, "update coupon code")
	}
	return updated, nil
}

// SetActive toggles a coupon's redemption flag without deleting the record.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) (*Coupon, error) {
	updated, err := s.repo.SetActive(ctx, id, active)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "set coupon active")
	}
	return updated, nil
}

// Delete removes a coupon permanently.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return errors.Wrap(err, "delete coupon")
	}
	return nil
}

// VerifyInput is the discriminated input for Verify: exactly one of Price
// (price-only verification) or Items (cart verification) must be set.
type VerifyInput struct {
	Code  string
	Price *decimal.Decimal
	Items []CartItem
}

// Verify looks up an active coupon by code and computes the discount for the
// given price or cart. It never mutates state.
func (s *Service) Verify(ctx context.Context, in VerifyInput) (*Quote, error) {
	code := NormalizeCode(in.Code)
	if code == "" {
		return nil, &ValidationError{Field: "code", Reason: "must not be empty"}
	}

	switch {
	case in.Price != nil && in.Items != nil:
		return nil, &ValidationError{Field: "body", Reason: "provide either originalPrice or cartItems, not both"}
	case in.Price == nil && in.Items == nil:
		return nil, &ValidationError{Field: "body", Reason: "provide originalPrice or a non-empty cartItems list"}
	case in.Items != nil && len(in.Items) == 0:
		return nil, &ValidationError{Field: "cartItems", Reason: "must not be empty"}
	}

	c, err := s.repo.FindActiveByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return nil, ErrInvalidCoupon
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if in.Price != nil {
		q := QuotePrice(c, *in.Price)
		return &q, nil
	}

	q, err := QuoteCart(c, in.Items)
	if err != nil {
		return nil, err
	}
	return &q, nil
}
