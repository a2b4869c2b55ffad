package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/promokit/coupon-service/internal/domain/coupon"
)

const couponColumns = `id, code, discount_percentage, valid_for_products, is_active, created_at`

const (
	insertCouponSQL = `INSERT INTO coupons (id, code, discount_percentage, valid_for_products, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + couponColumns

	listCouponsSQL = `SELECT ` + couponColumns + ` FROM coupons`

	findActiveCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons
		WHERE code = $1 AND is_active = TRUE`

	updateCouponCodeSQL = `UPDATE coupons SET code = $2 WHERE id = $1
		RETURNING ` + couponColumns

	setCouponActiveSQL = `UPDATE coupons SET is_active = $2 WHERE id = $1
		RETURNING ` + couponColumns

	deleteCouponSQL = `DELETE FROM coupons WHERE id = $1`
)

// uniqueViolation is the SQLSTATE for unique-constraint violations.
const uniqueViolation = "23505"

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
// Code uniqueness is enforced by the unique index on coupons.code.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// Create inserts a new coupon and returns the stored row.
// Returns coupon.ErrDuplicateCode when the code is already taken.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, insertCouponSQL,
		c.ID, c.Code, c.DiscountPercentage, c.ValidForProducts, c.IsActive, c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}

	created, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, coupon.ErrDuplicateCode
		}
		return nil, fmt.Errorf("creating coupon %q: %w", c.Code, err)
	}
	return &created, nil
}

// List returns all coupons. Row order is whatever the store produces and is
// not part of the contract.
func (r *CouponRepository) List(ctx context.Context) ([]coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, listCouponsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

// FindActiveByCode looks up an active coupon by its exact (pre-normalized)
// code. Returns coupon.ErrInvalidCoupon when no matching active coupon exists.
func (r *CouponRepository) FindActiveByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, findActiveCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// UpdateCode rewrites a coupon's code and returns the updated row.
// Returns coupon.ErrNotFound for an unknown id and coupon.ErrDuplicateCode
// when the new code collides with another coupon.
func (r *CouponRepository) UpdateCode(ctx context.Context, id uuid.UUID, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, updateCouponCodeSQL, id, code)
	if err != nil {
		return nil, fmt.Errorf("updating coupon %s: %w", id, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, coupon.ErrDuplicateCode
		}
		return nil, fmt.Errorf("updating coupon %s: %w", id, err)
	}
	return &c, nil
}

// SetActive flips the is_active flag and returns the updated row.
func (r *CouponRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, setCouponActiveSQL, id, active)
	if err != nil {
		return nil, fmt.Errorf("setting coupon %s active=%t: %w", id, active, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("setting coupon %s active=%t: %w", id, active, err)
	}
	return &c, nil
}

// Delete removes a coupon. Returns coupon.ErrNotFound when no row matched.
func (r *CouponRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, deleteCouponSQL, id)
	if err != nil {
		return fmt.Errorf("deleting coupon %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(
		&c.ID, &c.Code, &c.DiscountPercentage, &c.ValidForProducts, &c.IsActive, &c.CreatedAt,
	)
	return c, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
