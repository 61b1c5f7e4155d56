package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Erlan-Bam/ecommerce-prime-backend/internal/domain/checkout"
)

const (
	orderColumns = `id, status, customer_name, customer_phone, customer_email,
		delivery_method, payment_method, pay_later,
		COALESCE(point_id, ''), COALESCE(window_id, ''), address,
		total, discount, final_total, coupon_code, idempotency_key,
		created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (id, status, customer_name, customer_phone, customer_email,
		delivery_method, payment_method, pay_later, point_id, window_id, address,
		total, discount, final_total, coupon_code, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	createOrderItemSQL = `INSERT INTO order_items (order_id, position, product_id, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByIdempotencyKeySQL = `SELECT ` + orderColumns + ` FROM orders WHERE idempotency_key = $1`

	listOrderItemsSQL = `SELECT product_id, quantity, unit_price FROM order_items
		WHERE order_id = $1 ORDER BY position`

	markOrderCancelledSQL = `UPDATE orders
		SET status = 'CANCELLED', updated_at = now()
		WHERE id = $1 AND status <> 'CANCELLED'`
)

// Unique violation, raised by the partial index on idempotency_key.
const uniqueViolationCode = "23505"

var _ checkout.Repository = (*OrderRepository)(nil)

// OrderRepository implements checkout.Repository backed by PostgreSQL. The
// order row and its items are written in one transaction.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists an order and its items as a single durable unit. A unique
// violation on the idempotency key surfaces as ErrDuplicateIdempotencyKey.
func (r *OrderRepository) Create(ctx context.Context, o *checkout.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning order transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx, createOrderSQL,
		o.ID, string(o.Status),
		o.Customer.Name, o.Customer.Phone, o.Customer.Email,
		string(o.DeliveryMethod), string(o.PaymentMethod), o.PayLater,
		nullIfEmpty(o.PointID), nullIfEmpty(o.WindowID), o.Address,
		o.Total, o.Discount, o.FinalTotal, o.CouponCode, o.IdempotencyKey,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return checkout.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	for i, item := range o.Items {
		_, err = tx.Exec(ctx, createOrderItemSQL,
			o.ID, i, item.ProductID, item.Quantity, item.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("creating item %d of order %q: %w", i, o.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns an order with its items, or checkout.ErrOrderNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*checkout.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// FindByIdempotencyKey returns the order committed under the given key, or
// checkout.ErrOrderNotFound.
func (r *OrderRepository) FindByIdempotencyKey(ctx context.Context, key string) (*checkout.Order, error) {
	return r.getOne(ctx, getOrderByIdempotencyKeySQL, key)
}

// MarkCancelled transitions an order to CANCELLED. The status guard is part
// of the update, so only one of two concurrent cancellations wins.
func (r *OrderRepository) MarkCancelled(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, markOrderCancelledSQL, id)
	if err != nil {
		return fmt.Errorf("cancelling order %q: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return checkout.ErrAlreadyCancelled
}

func (r *OrderRepository) getOne(ctx context.Context, sql, arg string) (*checkout.Order, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checkout.ErrOrderNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}

	itemRows, err := r.pool.Query(ctx, listOrderItemsSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("listing items of order %q: %w", o.ID, err)
	}
	o.Items, err = pgx.CollectRows(itemRows, scanOrderItem)
	if err != nil {
		return nil, fmt.Errorf("listing items of order %q: %w", o.ID, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (checkout.Order, error) {
	var (
		o                         checkout.Order
		status, delivery, payment string
		total, discount, final    decimal.Decimal
		createdAt, updatedAt      time.Time
	)
	err := row.Scan(
		&o.ID, &status,
		&o.Customer.Name, &o.Customer.Phone, &o.Customer.Email,
		&delivery, &payment, &o.PayLater,
		&o.PointID, &o.WindowID, &o.Address,
		&total, &discount, &final, &o.CouponCode, &o.IdempotencyKey,
		&createdAt, &updatedAt,
	)
	o.Status = checkout.Status(status)
	o.DeliveryMethod = checkout.DeliveryMethod(delivery)
	o.PaymentMethod = checkout.PaymentMethod(payment)
	o.Total = total
	o.Discount = discount
	o.FinalTotal = final
	o.CreatedAt = createdAt
	o.UpdatedAt = updatedAt
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (checkout.OrderItem, error) {
	var (
		item     checkout.OrderItem
		quantity int32
	)
	err := row.Scan(&item.ProductID, &quantity, &item.UnitPrice)
	item.Quantity = int(quantity)
	return item, err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
