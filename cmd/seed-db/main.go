// Command seed-db loads demo coupons from a JSON file into the database.
// Existing codes are updated in place, so the command is safe to re-run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/promokit/coupon-service/internal/domain/coupon"
	"github.com/promokit/coupon-service/internal/repository"
)

type couponJSON struct {
	Code               string          `json:"code"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	ValidForProducts   []string        `json:"validForProducts"`
	IsActive           *bool           `json:"isActive"`
}

const upsertCouponSQL = `
INSERT INTO coupons (id, code, discount_percentage, valid_for_products, is_active)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (code) DO UPDATE SET
    discount_percentage = EXCLUDED.discount_percentage,
    valid_for_products  = EXCLUDED.valid_for_products,
    is_active           = EXCLUDED.is_active
`

func main() {
	var (
		databaseURL string
		couponsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&couponsFile, "coupons-file", "db/seed/coupons.json", "path to coupons JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, couponsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, couponsFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	return seedCoupons(ctx, pool, couponsFile)
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool, couponsFile string) error {
	slog.Info("reading coupons file", slog.String("path", couponsFile))

	data, err := os.ReadFile(couponsFile)
	if err != nil {
		return errors.Wrap(err, "read coupons file")
	}

	var coupons []couponJSON
	if err := json.Unmarshal(data, &coupons); err != nil {
		return errors.Wrap(err, "parse coupons JSON")
	}

	slog.Info("upserting coupons", slog.Int("count", len(coupons)))

	for _, c := range coupons {
		code := coupon.NormalizeCode(c.Code)
		if code == "" {
			return errors.Errorf("coupon with empty code in %s", couponsFile)
		}

		products := c.ValidForProducts
		if products == nil {
			products = []string{}
		}
		active := true
		if c.IsActive != nil {
			active = *c.IsActive
		}

		if _, err := pool.Exec(ctx, upsertCouponSQL,
			uuid.New(), code, c.DiscountPercentage, products, active,
		); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", code)
		}

		slog.Info("upserted coupon",
			slog.String("code", code),
			slog.String("percentage", c.DiscountPercentage.String()),
		)
	}

	return nil
}
