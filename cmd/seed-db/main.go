// Command seed-db loads demo pickup points, windows, and coupons so the API
// can be exercised locally.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/domain/coupon"
	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/domain/pickup"
	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/repository"
)

func main() {
	var (
		databaseURL string
		days        int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&days, "days", 7, "how many days of pickup windows to create")
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

	if err := run(ctx, databaseURL, days); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string, days int) error {
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

	points := repository.NewPointRepository(pool)
	windows := repository.NewWindowRepository(pool)
	coupons := repository.NewCouponRepository(pool)

	seeded, err := seedPoints(ctx, points)
	if err != nil {
		return errors.Wrap(err, "seed points")
	}
	if err := seedWindows(ctx, windows, seeded, days); err != nil {
		return errors.Wrap(err, "seed windows")
	}
	if err := seedCoupons(ctx, coupons); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	return nil
}

func seedPoints(ctx context.Context, repo *repository.PointRepository) ([]pickup.Point, error) {
	weekdays := pickup.DaySchedule{Open: "09:00", Close: "21:00"}
	var schedule pickup.WeekSchedule
	for i := range schedule {
		schedule[i] = weekdays
	}
	schedule[time.Sunday] = pickup.DaySchedule{Closed: true}

	points := []pickup.Point{
		{
			ID:        "point-central",
			Address:   "1 Central Square",
			Latitude:  51.5074,
			Longitude: -0.1278,
			Schedule:  schedule,
			Active:    true,
		},
		{
			ID:        "point-station",
			Address:   "42 Station Road",
			Latitude:  51.5287,
			Longitude: -0.1340,
			Schedule:  schedule,
			Active:    true,
		},
	}

	slog.Info("upserting pickup points", slog.Int("count", len(points)))

	for i := range points {
		if err := repo.Upsert(ctx, &points[i]); err != nil {
			return nil, errors.Wrapf(err, "upsert point %s", points[i].ID)
		}
		slog.Info("upserted point", slog.String("id", points[i].ID), slog.String("address", points[i].Address))
	}
	return points, nil
}

func seedWindows(ctx context.Context, repo *repository.WindowRepository, points []pickup.Point, days int) error {
	slog.Info("creating pickup windows", slog.Int("days", days))

	created := 0
	for _, p := range points {
		day := time.Now().Truncate(24 * time.Hour).Add(24 * time.Hour)
		for d := 0; d < days; d++ {
			// Two-hour slots between 10:00 and 20:00.
			for hour := 10; hour < 20; hour += 2 {
				start := day.Add(time.Duration(hour) * time.Hour)
				w := &pickup.Window{
					ID:        uuid.New().String(),
					PointID:   p.ID,
					StartTime: start,
					EndTime:   start.Add(2 * time.Hour),
					Capacity:  10,
				}
				err := repo.Create(ctx, w)
				var overlapErr *pickup.OverlapError
				if errors.As(err, &overlapErr) {
					// Already seeded on a previous run.
					continue
				}
				if err != nil {
					return errors.Wrapf(err, "create window at %s for %s", start, p.ID)
				}
				created++
			}
			day = day.Add(24 * time.Hour)
		}
	}

	slog.Info("created windows", slog.Int("count", created))
	return nil
}

func seedCoupons(ctx context.Context, repo *repository.CouponRepository) error {
	slog.Info("seeding demo coupons")

	soon := time.Now().Add(30 * 24 * time.Hour)
	rules := []coupon.Rule{
		{
			Code:   "SAVE20",
			Kind:   coupon.KindPercentage,
			Value:  decimal.NewFromInt(20),
			Active: true,
		},
		{
			Code:       "WELCOME10",
			Kind:       coupon.KindFixed,
			Value:      decimal.RequireFromString("10.00"),
			UsageLimit: 1000,
			ValidTo:    &soon,
			Active:     true,
		},
	}

	for i := range rules {
		if err := repo.Upsert(ctx, &rules[i]); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", rules[i].Code)
		}
		slog.Info("upserted coupon", slog.String("code", rules[i].Code), slog.String("kind", string(rules[i].Kind)))
	}
	return nil
}
