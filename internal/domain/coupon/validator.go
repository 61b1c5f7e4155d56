package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Validator resolves a coupon code to its discount rule and records usage.
//
// Validate is side-effect free: usage is counted by RecordUsage, which the
// checkout flow calls only after the order commit is durable. Counting inside
// Validate would leak a use for every order that fails between validation and
// commit.
type Validator struct {
	repo Repository
	now  func() time.Time
}

// NewValidator creates a Validator backed by the given Repository.
func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo, now: time.Now}
}

// Validate looks up the rule for the given code and checks, in order:
// existence, active flag, validity window, usage limit. Each failure maps to
// its own sentinel so callers can show a distinct message.
func (v *Validator) Validate(ctx context.Context, code string) (*Rule, error) {
	rule, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if !rule.Active {
		return nil, ErrInactive
	}

	now := v.now()
	if rule.ValidFrom != nil && now.Before(*rule.ValidFrom) {
		return nil, ErrNotYetValid
	}
	if rule.ValidTo != nil && now.After(*rule.ValidTo) {
		return nil, ErrExpired
	}

	if rule.UsageLimit > 0 && rule.UsageCount >= rule.UsageLimit {
		return nil, ErrUsageExceeded
	}

	return rule, nil
}

// RecordUsage increments the coupon's usage counter. Must be called at most
// once per finalized order, after the order row is durably committed.
func (v *Validator) RecordUsage(ctx context.Context, code string) error {
	if err := v.repo.IncrementUsage(ctx, code); err != nil {
		return errors.Wrap(err, "record coupon usage")
	}
	return nil
}

// RefundUsage decrements the coupon's usage counter. Only the cancellation
// policy that treats cancelled orders as unspent calls this.
func (v *Validator) RefundUsage(ctx context.Context, code string) error {
	if err := v.repo.DecrementUsage(ctx, code); err != nil {
		return errors.Wrap(err, "refund coupon usage")
	}
	return nil
}
