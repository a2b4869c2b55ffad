// Command coupon-ingest bulk-loads coupon codes from gzip-compressed text
// files (one code per line) into the coupons table. Codes already present are
// left untouched.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/promokit/coupon-service/internal/domain/coupon"
	"github.com/promokit/coupon-service/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	batchSize     = 1000
	progressEvery = 100_000
)

const insertCodeSQL = `
INSERT INTO coupons (id, code, discount_percentage, valid_for_products, is_active)
VALUES ($1, $2, $3, '{}', TRUE)
ON CONFLICT (code) DO NOTHING
`

func main() {
	var (
		dataDir     string
		databaseURL string
		percentage  float64
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.gz code files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Float64Var(&percentage, "percentage", 10, "discount percentage assigned to ingested codes")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if percentage < 1 || percentage > 99 {
		slog.Error("percentage must be between 1 and 99", slog.Float64("percentage", percentage))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, decimal.NewFromFloat(percentage)); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string, percentage decimal.Decimal) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "glob data dir")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.gz files found in %s", dataDir)
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("ingesting code files", slog.Int("files", len(files)))

	// Readers stream the files concurrently; the single inserter goroutine
	// dedupes through the bloom filter and batches the writes.
	codes := make(chan string, batchSize)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return insertCodes(ctx, pool, percentage, codes)
	})

	readers, readerCtx := errgroup.WithContext(ctx)
	for _, path := range files {
		readers.Go(func() error {
			return streamGzFile(readerCtx, path, codes)
		})
	}

	readErr := readers.Wait()
	close(codes)

	if err := g.Wait(); err != nil {
		return err
	}
	return readErr
}

// streamGzFile reads a gzip-compressed file line by line and sends each
// non-empty line to out.
func streamGzFile(ctx context.Context, path string, out chan<- string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		select {
		case out <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

type poolBatcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// insertCodes drains the codes channel, dedupes normalized codes through a
// bloom filter, and writes them in batches. The database enforces exact
// uniqueness via ON CONFLICT, so bloom false positives only skip inserts.
func insertCodes(ctx context.Context, pool poolBatcher, percentage decimal.Decimal, codes <-chan string) error {
	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	batch := &pgx.Batch{}

	var total uint64
	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "send batch")
		}
		batch = &pgx.Batch{}
		return nil
	}

	for raw := range codes {
		code := coupon.NormalizeCode(raw)
		if code == "" || seen.TestAndAddString(code) {
			continue
		}

		batch.Queue(insertCodeSQL, uuid.New(), code, percentage)
		total++

		if batch.Len() >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
		if total%progressEvery == 0 {
			slog.Info("ingest progress", slog.Uint64("codes", total))
		}
	}

	if err := flush(); err != nil {
		return err
	}

	slog.Info("ingest done", slog.Uint64("unique_codes", total))
	return nil
}
