package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DeliveryMethod selects how the buyer receives the order.
type DeliveryMethod string

const (
	DeliveryPickup  DeliveryMethod = "PICKUP"
	DeliveryCourier DeliveryMethod = "DELIVERY"
)

// PaymentMethod selects how the buyer pays.
type PaymentMethod string

const (
	PaymentCard PaymentMethod = "CARD"
	PaymentCash PaymentMethod = "CASH"
)

// Status is the persisted order status. Finalize leaves every order PENDING;
// later fulfillment transitions happen outside this service, except
// cancellation, which must flow through Cancel to release capacity.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCancelled Status = "CANCELLED"
)

var (
	// ErrOrderNotFound is returned for unknown order IDs.
	ErrOrderNotFound = errors.New("order not found")
	// ErrAlreadyCancelled is returned when cancelling a cancelled order.
	ErrAlreadyCancelled = errors.New("order is already cancelled")
	// ErrDuplicateIdempotencyKey is returned by the repository when another
	// order already holds the requested idempotency key.
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
	// ErrCommitFailed wraps storage errors from the order commit after
	// retries are exhausted.
	ErrCommitFailed = errors.New("order could not be committed")
)

// ValidationError reports malformed or missing finalize input. Nothing has
// been mutated when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// OrderItem is one line of an order. UnitPrice is the price captured when the
// cart was built; it is never recomputed from the live catalog.
type OrderItem struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Customer holds buyer contact information.
type Customer struct {
	Name  string
	Phone string
	Email string
}

// Order is a finalized (or cancelled) order. PointID and WindowID are set
// only for pickup orders, Address only for delivery orders.
type Order struct {
	ID             string
	Status         Status
	Customer       Customer
	DeliveryMethod DeliveryMethod
	PaymentMethod  PaymentMethod
	PayLater       bool
	PointID        string
	WindowID       string
	Address        string
	Total          decimal.Decimal
	Discount       decimal.Decimal
	FinalTotal     decimal.Decimal
	CouponCode     string
	IdempotencyKey string
	Items          []OrderItem
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Repository defines persistence for orders. Create must write the order row
// and its items as a single durable unit.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)

	// FindByIdempotencyKey returns the order committed under the given key,
	// or ErrOrderNotFound.
	FindByIdempotencyKey(ctx context.Context, key string) (*Order, error)

	// MarkCancelled transitions an order to CANCELLED. Returns
	// ErrAlreadyCancelled when the order is already cancelled, implemented as
	// a conditional update so two concurrent cancellations release capacity
	// once.
	MarkCancelled(ctx context.Context, id string) error
}
