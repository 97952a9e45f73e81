// Command promo-gen mints a batch of coupon codes sharing one discount rule.
// Known-code lists (gzip, one code per line) can pre-seed the duplicate
// screen, and the minted codes can be exported as a gzip list for the next
// run or for a partner handoff.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/broxiva/promo-engine/internal/domain/coupon"
	"github.com/broxiva/promo-engine/internal/storage/postgres"
)

const (
	knownCapacity = 10_000_000
	knownFPR      = 0.001
)

func main() {
	var (
		databaseURL  string
		quantity     int
		prefix       string
		codeLength   int
		discountType string
		value        string
		name         string
		knownFiles   string
		exportPath   string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&quantity, "quantity", 100, "number of coupons to generate")
	flag.StringVar(&prefix, "prefix", "", "code prefix shared by the batch")
	flag.IntVar(&codeLength, "code-length", 8, "random suffix length")
	flag.StringVar(&discountType, "type", "percentage", "discount type for the batch")
	flag.StringVar(&value, "value", "10", "discount value for the batch")
	flag.StringVar(&name, "name", "Bulk generated coupon", "coupon display name")
	flag.StringVar(&knownFiles, "known-files", "", "comma-separated gzip code lists to pre-seed the duplicate screen")
	flag.StringVar(&exportPath, "export", "", "write generated codes to this gzip file")
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

	v, err := decimal.NewFromString(value)
	if err != nil {
		slog.Error("invalid discount value", slog.String("value", value))
		os.Exit(1)
	}

	params := coupon.GenerateParams{
		Template: coupon.Coupon{
			Name:   name,
			Type:   coupon.DiscountType(discountType),
			Value:  v,
			Active: true,
		},
		Quantity:   quantity,
		Prefix:     prefix,
		CodeLength: codeLength,
	}

	if err := run(ctx, databaseURL, params, splitFiles(knownFiles), exportPath); err != nil {
		slog.Error("generation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, databaseURL string, params coupon.GenerateParams, knownFiles []string, exportPath string) error {
	if len(knownFiles) > 0 {
		known, err := loadKnownCodes(ctx, knownFiles)
		if err != nil {
			return errors.Wrap(err, "load known codes")
		}
		params.Known = known
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	gen := coupon.NewGenerator(postgres.NewCouponRepository(pool))

	slog.Info("generating coupons",
		slog.Int("quantity", params.Quantity),
		slog.String("prefix", params.Prefix),
	)

	res, err := gen.Generate(ctx, params)
	if err != nil {
		return errors.Wrap(err, "generate")
	}

	slog.Info("generation complete",
		slog.Int("generated", res.Generated),
		slog.Int("skipped", res.Skipped),
	)

	if exportPath != "" {
		if err := exportCodes(exportPath, res.Coupons); err != nil {
			return errors.Wrap(err, "export codes")
		}
		slog.Info("exported codes", slog.String("path", exportPath))
	}

	return nil
}

// loadKnownCodes streams each gzip code list into a per-file bloom filter
// concurrently, then merges them into one screen.
func loadKnownCodes(ctx context.Context, files []string) (*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(knownCapacity, knownFPR)
			var count uint64

			if err := streamGzFile(ctx, path, func(code string) {
				filter.AddString(code)
				count++
			}); err != nil {
				return errors.Wrapf(err, "load %s", path)
			}

			slog.Info("loaded known codes", slog.String("path", path), slog.Uint64("codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := filters[0]
	for _, f := range filters[1:] {
		if err := merged.Merge(f); err != nil {
			return nil, errors.Wrap(err, "merge filters")
		}
	}
	return merged, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(code string)) error {
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
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// exportCodes writes the minted codes to a gzip file, one code per line.
func exportCodes(path string, coupons []*coupon.Coupon) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() { _ = f.Close() }()

	gz := pgzip.NewWriter(f)
	w := bufio.NewWriter(gz)
	for _, c := range coupons {
		if _, err := w.WriteString(c.Code + "\n"); err != nil {
			return errors.Wrap(err, "write code")
		}
	}
	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "flush")
	}
	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "close gzip writer")
	}
	return nil
}

func splitFiles(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
