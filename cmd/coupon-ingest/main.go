// Command coupon-ingest loads promo codes from large gzip dumps. A code is
// accepted only when it appears in at least two of the input files; the
// cross-check runs in two passes over bloom filters so the full code set
// never has to fit in memory.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/domain/coupon"
	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/repository"
)

const (
	bloomCapacity = 120_000_000
	bloomFPR      = 0.001
	numFiles      = 3
	logEvery      = 10_000_000
	minCodeLen    = 8
	maxCodeLen    = 10
)

// codeRule describes the discount rule to apply for a known promo code.
type codeRule struct {
	kind       coupon.Kind
	value      string
	usageLimit int
}

var codeRules = map[string]codeRule{
	"FIFTYOFF": {kind: coupon.KindPercentage, value: "50"},
	"TWENTYPC": {kind: coupon.KindPercentage, value: "20"},
	"HAPPYHRS": {kind: coupon.KindPercentage, value: "18"},
	"OVER9000": {kind: coupon.KindFixed, value: "9"},
	"TENNEROF": {kind: coupon.KindFixed, value: "10", usageLimit: 10_000},
}

var defaultRule = codeRule{
	kind:  coupon.KindPercentage,
	value: "10",
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing couponbaseN.gz files")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
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

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("coupon ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon ingest completed")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files := make([]string, numFiles)
	for i := range numFiles {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("couponbase%d.gz", i+1))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("pass 1: indexing files into bloom filters", slog.Int("files", numFiles))

	filters, err := buildFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: cross-checking codes between files")

	accepted, err := crossCheck(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "cross-check codes")
	}

	slog.Info("codes accepted", slog.Int("count", len(accepted)))
	if len(accepted) == 0 {
		return nil
	}

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return writeCoupons(ctx, repository.NewCouponRepository(pool), accepted)
}

// buildFilters streams each file once and records every plausible code in a
// per-file bloom filter. Files are processed concurrently.
func buildFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var seen uint64

			err := scanCodes(ctx, path, func(code string) {
				filter.AddString(code)
				seen++
				if seen%logEvery == 0 {
					slog.Info("pass 1 progress", slog.Int("file", i+1), slog.Uint64("codes", seen))
				}
			})
			if err != nil {
				return errors.Wrapf(err, "index file %d", i+1)
			}

			slog.Info("pass 1 file done", slog.Int("file", i+1), slog.Uint64("codes", seen))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// crossCheck streams each file again, testing every code against the other
// files' filters. Per-file presence is collected as a bitmask; codes with
// two or more bits set are accepted. Bloom false positives can only promote
// a code into the candidate map, never reach the accepted set on their own,
// since acceptance needs hits from distinct files.
func crossCheck(ctx context.Context, files []string, filters []*bloom.BloomFilter) ([]string, error) {
	perFile := make([]map[string]uint, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			candidates := make(map[string]uint)
			bit := uint(1) << uint(i)
			var seen uint64

			err := scanCodes(ctx, path, func(code string) {
				seen++
				if seen%logEvery == 0 {
					slog.Info("pass 2 progress", slog.Int("file", i+1), slog.Uint64("codes", seen))
				}
				for j, f := range filters {
					if j != i && f.TestString(code) {
						candidates[code] |= bit
						break
					}
				}
			})
			if err != nil {
				return errors.Wrapf(err, "cross-check file %d", i+1)
			}

			slog.Info("pass 2 file done",
				slog.Int("file", i+1),
				slog.Uint64("codes", seen),
				slog.Int("candidates", len(candidates)),
			)
			perFile[i] = candidates
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint)
	for _, candidates := range perFile {
		for code, mask := range candidates {
			merged[code] |= mask
		}
	}

	var accepted []string
	for code, mask := range merged {
		if bits.OnesCount(mask) >= 2 {
			accepted = append(accepted, code)
		}
	}
	return accepted, nil
}

// scanCodes streams a gzip file line by line, passing codes of plausible
// length to fn. Decompression uses pgzip for parallel inflate on big dumps.
func scanCodes(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		code := scanner.Text()
		if len(code) >= minCodeLen && len(code) <= maxCodeLen {
			fn(code)
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// writeCoupons upserts accepted codes with their discount rules.
func writeCoupons(ctx context.Context, repo *repository.CouponRepository, codes []string) error {
	slog.Info("writing coupons", slog.Int("count", len(codes)))

	for i, code := range codes {
		rule, ok := codeRules[code]
		if !ok {
			rule = defaultRule
		}

		value, err := decimal.NewFromString(rule.value)
		if err != nil {
			return errors.Wrapf(err, "parse value for code %s", code)
		}

		if err := repo.Upsert(ctx, &coupon.Rule{
			Code:       code,
			Kind:       rule.kind,
			Value:      value,
			UsageLimit: rule.usageLimit,
			Active:     true,
		}); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", code)
		}

		if (i+1)%100 == 0 || i+1 == len(codes) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(codes)))
		}
	}
	return nil
}
