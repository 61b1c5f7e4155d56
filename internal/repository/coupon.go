package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, kind, value, valid_from, valid_to,
		usage_limit, usage_count, active
		FROM coupons WHERE UPPER(code) = UPPER($1)`

	incrementCouponUsageSQL = `UPDATE coupons
		SET usage_count = usage_count + 1, updated_at = now()
		WHERE UPPER(code) = UPPER($1)
		AND (usage_limit = 0 OR usage_count < usage_limit)`

	decrementCouponUsageSQL = `UPDATE coupons
		SET usage_count = usage_count - 1, updated_at = now()
		WHERE UPPER(code) = UPPER($1) AND usage_count > 0`

	upsertCouponSQL = `INSERT INTO coupons (code, kind, value, valid_from, valid_to, usage_limit, usage_count, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (code) DO UPDATE SET
			kind = EXCLUDED.kind,
			value = EXCLUDED.value,
			valid_from = EXCLUDED.valid_from,
			valid_to = EXCLUDED.valid_to,
			usage_limit = EXCLUDED.usage_limit,
			active = EXCLUDED.active,
			updated_at = now()`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL. Usage
// counter changes are conditional updates; the limit guard is part of the
// statement, not a separate read.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code, case-insensitively. Inactive
// rules are returned too; activity is the validator's concern. Returns
// coupon.ErrNotFound when no rule exists under the code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanCouponRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &rule, nil
}

// IncrementUsage atomically bumps the usage counter while the limit allows
// it. A limit of zero means unlimited.
func (r *CouponRepository) IncrementUsage(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, incrementCouponUsageSQL, code)
	if err != nil {
		return fmt.Errorf("incrementing usage for coupon %q: %w", code, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.FindByCode(ctx, code); err != nil {
		return err
	}
	return coupon.ErrUsageExceeded
}

// DecrementUsage atomically lowers the usage counter while it is above zero.
func (r *CouponRepository) DecrementUsage(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, decrementCouponUsageSQL, code)
	if err != nil {
		return fmt.Errorf("decrementing usage for coupon %q: %w", code, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.FindByCode(ctx, code); err != nil {
		return err
	}
	return coupon.ErrNothingToRefund
}

// Upsert inserts or replaces a coupon rule. The usage counter of an existing
// rule is preserved.
func (r *CouponRepository) Upsert(ctx context.Context, rule *coupon.Rule) error {
	_, err := r.pool.Exec(ctx, upsertCouponSQL,
		rule.Code, string(rule.Kind), rule.Value, rule.ValidFrom, rule.ValidTo,
		rule.UsageLimit, rule.UsageCount, rule.Active,
	)
	if err != nil {
		return fmt.Errorf("upserting coupon %q: %w", rule.Code, err)
	}
	return nil
}

func scanCouponRule(row pgx.CollectableRow) (coupon.Rule, error) {
	var (
		rule       coupon.Rule
		kind       string
		value      decimal.Decimal
		validFrom  *time.Time
		validTo    *time.Time
		usageLimit int32
		usageCount int32
	)
	err := row.Scan(
		&rule.Code, &kind, &value, &validFrom, &validTo,
		&usageLimit, &usageCount, &rule.Active,
	)
	rule.Kind = coupon.Kind(kind)
	rule.Value = value
	rule.ValidFrom = validFrom
	rule.ValidTo = validTo
	rule.UsageLimit = int(usageLimit)
	rule.UsageCount = int(usageCount)
	return rule, err
}
