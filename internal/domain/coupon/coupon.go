package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported discount strategies.
type Kind string

const (
	// KindFixed subtracts a fixed amount, capped at the order total.
	KindFixed Kind = "fixed"
	// KindPercentage subtracts a percentage of the order total.
	KindPercentage Kind = "percentage"
)

var (
	// ErrNotFound is returned when no coupon exists for a code.
	ErrNotFound = errors.New("coupon not found")
	// ErrInactive is returned when the coupon has been switched off.
	ErrInactive = errors.New("coupon is inactive")
	// ErrNotYetValid is returned before the coupon's validity window opens.
	ErrNotYetValid = errors.New("coupon is not yet valid")
	// ErrExpired is returned after the coupon's validity window closes.
	ErrExpired = errors.New("coupon has expired")
	// ErrUsageExceeded is returned when the coupon has exhausted its allowed uses.
	ErrUsageExceeded = errors.New("coupon usage limit reached")
	// ErrNothingToRefund is returned by a refund when the usage counter is
	// already zero.
	ErrNothingToRefund = errors.New("coupon has no recorded usage to refund")
)

// Rule defines a coupon's discount behaviour and eligibility constraints.
// Codes are unique case-insensitively. A UsageLimit of zero means unlimited.
type Rule struct {
	Code       string
	Kind       Kind
	Value      decimal.Decimal
	ValidFrom  *time.Time
	ValidTo    *time.Time
	UsageLimit int
	UsageCount int
	Active     bool
}

// Remaining returns how many uses are left, or -1 for unlimited coupons.
func (r Rule) Remaining() int {
	if r.UsageLimit == 0 {
		return -1
	}
	if left := r.UsageLimit - r.UsageCount; left > 0 {
		return left
	}
	return 0
}

// Repository provides lookup and counter mutation for coupon rules.
// IncrementUsage and DecrementUsage must be single conditional updates so
// that concurrent orders applying the same coupon never lose counts.
type Repository interface {
	// FindByCode looks a rule up case-insensitively, including inactive
	// rules: the validator distinguishes "inactive" from "not found".
	FindByCode(ctx context.Context, code string) (*Rule, error)

	// IncrementUsage bumps the usage counter while the limit allows it.
	// Returns ErrUsageExceeded when the guard fails.
	IncrementUsage(ctx context.Context, code string) error

	// DecrementUsage lowers the usage counter while it is above zero.
	// Returns ErrNothingToRefund when the guard fails.
	DecrementUsage(ctx context.Context, code string) error

	Upsert(ctx context.Context, rule *Rule) error
}
