package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/cache"
	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/domain/coupon"
	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/domain/pickup"
	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/domain/pricing"
)

// Ledger is the capacity ledger surface the orchestrator needs.
type Ledger interface {
	TryReserve(ctx context.Context, windowID string) error
	Release(ctx context.Context, windowID string) error
}

// WindowResolver maps a pickup time to the covering window at a point.
type WindowResolver interface {
	ResolveWindow(ctx context.Context, pointID string, at time.Time) (*pickup.Window, error)
}

// CouponValidator validates codes and records usage post-commit.
type CouponValidator interface {
	Validate(ctx context.Context, code string) (*coupon.Rule, error)
	RecordUsage(ctx context.Context, code string) error
	RefundUsage(ctx context.Context, code string) error
}

// CancelPolicy decides what happens to a coupon's usage counter when an
// order that spent it is cancelled.
type CancelPolicy int

const (
	// KeepCouponUsage leaves the coupon spent. This mirrors the historical
	// behaviour of the platform.
	KeepCouponUsage CancelPolicy = iota
	// RefundCouponUsage decrements the counter so the coupon can be reused.
	RefundCouponUsage
)

// FinalizeRequest is the input to Finalize: a priced cart plus delivery and
// payment choices.
type FinalizeRequest struct {
	Items          []OrderItem
	Customer       Customer
	DeliveryMethod DeliveryMethod
	PaymentMethod  PaymentMethod
	PayLater       bool
	PointID        string
	PickupTime     time.Time
	Address        string
	CouponCode     string
	// IdempotencyKey lets a client retry a timed-out finalize without risking
	// a second reservation. Optional.
	IdempotencyKey string
}

// state tracks the orchestrator's position in the finalize flow. Transitions
// are linear; FAILED is reachable from every non-terminal state and triggers
// the compensation stack.
type state int

const (
	stateValidating state = iota
	stateReserving
	statePricing
	stateCommitting
	stateFinalized
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateValidating:
		return "VALIDATING"
	case stateReserving:
		return "RESERVING"
	case statePricing:
		return "PRICING"
	case stateCommitting:
		return "COMMITTING"
	case stateFinalized:
		return "FINALIZED"
	case stateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// compensation is an undo action registered by a completed step, run in LIFO
// order when a later step fails.
type compensation struct {
	name string
	undo func(context.Context) error
}

// finalizeRun is the per-call state machine instance.
type finalizeRun struct {
	state state
	comps []compensation
}

func (r *finalizeRun) advance(s state) {
	r.state = s
}

func (r *finalizeRun) push(name string, undo func(context.Context) error) {
	r.comps = append(r.comps, compensation{name: name, undo: undo})
}

// Service is the checkout orchestrator: it turns a cart plus delivery and
// payment choices into a finalized order, coordinating the window resolver,
// capacity ledger, coupon validator, pricing engine, and order persistence.
type Service struct {
	orders        Repository
	ledger        Ledger
	windows       WindowResolver
	coupons       CouponValidator
	cache         cache.Cache
	policy        CancelPolicy
	commitRetries int
	lg            *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCancelPolicy selects the coupon behaviour on cancellation.
func WithCancelPolicy(p CancelPolicy) Option {
	return func(s *Service) { s.policy = p }
}

// WithCommitRetries bounds retries of the order commit on storage errors.
// Retrying is safe only because no coupon usage has been recorded yet and the
// reservation is compensated on final failure.
func WithCommitRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.commitRetries = n
		}
	}
}

// NewService creates the checkout orchestrator.
func NewService(
	orders Repository,
	ledger Ledger,
	windows WindowResolver,
	coupons CouponValidator,
	c cache.Cache,
	lg *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		orders:        orders,
		ledger:        ledger,
		windows:       windows,
		coupons:       coupons,
		cache:         c,
		policy:        KeepCouponUsage,
		commitRetries: 2,
		lg:            lg.Named("checkout"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Finalize runs the checkout state machine:
//
//	VALIDATING -> RESERVING -> PRICING -> COMMITTING -> FINALIZED
//
// Validation failures surface before any mutation. The window reservation is
// the first side effect; every later failure path releases it through the
// compensation stack before the error is returned. Coupon usage is recorded
// strictly after the commit is durable, because a recorded use has no
// compensating action once the coupon is shared with other orders.
func (s *Service) Finalize(ctx context.Context, req FinalizeRequest) (*Order, error) {
	if req.IdempotencyKey != "" {
		existing, err := s.orders.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		switch {
		case err == nil:
			s.lg.Info("idempotent replay", zap.String("order_id", existing.ID))
			return existing, nil
		case !errors.Is(err, ErrOrderNotFound):
			return nil, errors.Wrap(err, "idempotency lookup")
		}
	}

	run := &finalizeRun{state: stateValidating}

	if err := validateRequest(req); err != nil {
		return nil, s.fail(ctx, run, err)
	}

	// Resolve the covering window before touching any counters.
	var window *pickup.Window
	if req.DeliveryMethod == DeliveryPickup {
		w, err := s.windows.ResolveWindow(ctx, req.PointID, req.PickupTime)
		if err != nil {
			return nil, s.fail(ctx, run, err)
		}
		window = w
	}

	run.advance(stateReserving)
	if window != nil {
		if err := s.ledger.TryReserve(ctx, window.ID); err != nil {
			// Nothing else has been mutated yet, so no compensation runs.
			return nil, s.fail(ctx, run, err)
		}
		windowID := window.ID
		run.push("release window reservation", func(ctx context.Context) error {
			return s.ledger.Release(ctx, windowID)
		})
	}

	run.advance(statePricing)
	var rule *coupon.Rule
	if req.CouponCode != "" {
		r, err := s.coupons.Validate(ctx, req.CouponCode)
		if err != nil {
			return nil, s.fail(ctx, run, err)
		}
		rule = r
	}
	totals := pricing.ComputeTotals(lineItems(req.Items), rule)

	run.advance(stateCommitting)
	order := &Order{
		ID:             uuid.New().String(),
		Status:         StatusPending,
		Customer:       req.Customer,
		DeliveryMethod: req.DeliveryMethod,
		PaymentMethod:  req.PaymentMethod,
		PayLater:       req.PayLater,
		Address:        req.Address,
		Total:          totals.Total,
		Discount:       totals.Discount,
		FinalTotal:     totals.FinalTotal,
		CouponCode:     req.CouponCode,
		IdempotencyKey: req.IdempotencyKey,
		Items:          req.Items,
	}
	if window != nil {
		order.PointID = window.PointID
		order.WindowID = window.ID
	}

	if err := s.commit(ctx, order); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			// A concurrent retry with the same key won the commit. Our own
			// reservation is surplus: release it and return the winner.
			s.compensate(ctx, run)
			existing, ferr := s.orders.FindByIdempotencyKey(ctx, req.IdempotencyKey)
			if ferr != nil {
				return nil, errors.Wrap(ferr, "load order for duplicate idempotency key")
			}
			return existing, nil
		}
		return nil, s.fail(ctx, run, errors.Wrap(ErrCommitFailed, err.Error()))
	}

	run.advance(stateFinalized)

	// Post-commit: record coupon usage. The order is durably committed, so a
	// failure here cannot fail it anymore; it becomes an operational alert
	// instead of a retry of the whole flow.
	if rule != nil {
		if err := s.coupons.RecordUsage(ctx, rule.Code); err != nil {
			s.lg.Error("coupon usage not recorded for committed order",
				zap.String("order_id", order.ID),
				zap.String("coupon", rule.Code),
				zap.Error(err),
			)
		}
		s.invalidateCoupon(ctx, rule.Code)
	}

	s.lg.Info("order finalized",
		zap.String("order_id", order.ID),
		zap.String("delivery", string(order.DeliveryMethod)),
		zap.String("final_total", order.FinalTotal.String()),
	)
	return order, nil
}

// Get returns an order with its items.
func (s *Service) Get(ctx context.Context, orderID string) (*Order, error) {
	return s.orders.GetByID(ctx, orderID)
}

// Cancel is the order-lifecycle contract: it transitions the order to
// CANCELLED and releases its window reservation. Coupon usage follows the
// configured policy.
func (s *Service) Cancel(ctx context.Context, orderID string) (*Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.orders.MarkCancelled(ctx, orderID); err != nil {
		return nil, err
	}
	order.Status = StatusCancelled

	if order.WindowID != "" {
		if err := s.ledger.Release(ctx, order.WindowID); err != nil {
			// The capacity invariant depends on this release; an underflow
			// here means the counter was already reconciled or the call
			// discipline broke upstream.
			s.lg.Error("release on cancel failed",
				zap.String("order_id", orderID),
				zap.String("window_id", order.WindowID),
				zap.Error(err),
			)
		}
	}

	if order.CouponCode != "" && s.policy == RefundCouponUsage {
		if err := s.coupons.RefundUsage(ctx, order.CouponCode); err != nil {
			s.lg.Warn("coupon refund on cancel failed",
				zap.String("order_id", orderID),
				zap.String("coupon", order.CouponCode),
				zap.Error(err),
			)
		}
		s.invalidateCoupon(ctx, order.CouponCode)
	}

	return order, nil
}

// commit persists the order with bounded retries on storage errors. Retries
// stop at the first success, a duplicate idempotency key, or context
// cancellation.
func (s *Service) commit(ctx context.Context, order *Order) error {
	var err error
	for attempt := 0; attempt <= s.commitRetries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = s.orders.Create(ctx, order); err == nil {
			return nil
		}
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			return err
		}
		s.lg.Warn("order commit attempt failed",
			zap.String("order_id", order.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return err
}

// fail runs the compensation stack and returns the causing error.
func (s *Service) fail(ctx context.Context, run *finalizeRun, cause error) error {
	s.lg.Debug("finalize failed",
		zap.Stringer("state", run.state),
		zap.Error(cause),
	)
	run.advance(stateFailed)
	s.compensate(ctx, run)
	return cause
}

// compensate unwinds registered undo actions in LIFO order. Compensation is
// mandatory for the capacity invariant, so failures are logged at error
// level: a failed release leaks a reservation until the reaper reconciles it.
func (s *Service) compensate(ctx context.Context, run *finalizeRun) {
	for i := len(run.comps) - 1; i >= 0; i-- {
		comp := run.comps[i]
		if err := comp.undo(ctx); err != nil {
			s.lg.Error("compensation failed",
				zap.String("compensation", comp.name),
				zap.Error(err),
			)
		}
	}
	run.comps = nil
}

func (s *Service) invalidateCoupon(ctx context.Context, code string) {
	if err := s.cache.InvalidateByPattern(ctx, cache.CouponKey(code)); err != nil {
		s.lg.Warn("coupon cache invalidation failed", zap.String("coupon", code), zap.Error(err))
	}
}

func validateRequest(req FinalizeRequest) error {
	if len(req.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "at least one item is required"}
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return &ValidationError{Field: "items", Reason: "quantity must be greater than 0 for product " + item.ProductID}
		}
		if item.UnitPrice.IsNegative() {
			return &ValidationError{Field: "items", Reason: "unit price must not be negative for product " + item.ProductID}
		}
	}

	if req.Customer.Name == "" {
		return &ValidationError{Field: "customer.name", Reason: "required"}
	}
	if req.Customer.Phone == "" {
		return &ValidationError{Field: "customer.phone", Reason: "required"}
	}

	switch req.DeliveryMethod {
	case DeliveryPickup:
		if req.PointID == "" {
			return &ValidationError{Field: "pointId", Reason: "required for pickup orders"}
		}
		if req.PickupTime.IsZero() {
			return &ValidationError{Field: "pickupTime", Reason: "required for pickup orders"}
		}
	case DeliveryCourier:
		if req.Address == "" {
			return &ValidationError{Field: "address", Reason: "required for delivery orders"}
		}
	default:
		return &ValidationError{Field: "deliveryMethod", Reason: "must be PICKUP or DELIVERY"}
	}

	switch req.PaymentMethod {
	case PaymentCard, PaymentCash:
	default:
		return &ValidationError{Field: "paymentMethod", Reason: "must be CARD or CASH"}
	}
	if req.PayLater && req.PaymentMethod != PaymentCash {
		return &ValidationError{Field: "payLater", Reason: "only cash orders can be paid later"}
	}

	return nil
}

func lineItems(items []OrderItem) []pricing.LineItem {
	out := make([]pricing.LineItem, len(items))
	for i, item := range items {
		out[i] = pricing.LineItem{
			ProductID: item.ProductID,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}
	return out
}
