package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bazaar/internal/domain/order"
)

const (
	uniqueViolation       = "23505"
	orderNumberConstraint = "orders_order_number_key"
)

const (
	createOrderSQL = `INSERT INTO orders (id, order_number, customer_id, store_id, status, version, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	getOrderSQL = `SELECT version, document FROM orders WHERE id = $1`

	getOrderByNumberSQL = `SELECT version, document FROM orders WHERE order_number = $1`

	listOrdersByCustomerSQL = `SELECT version, document FROM orders WHERE customer_id = $1 ORDER BY created_at DESC`

	updateOrderSQL = `UPDATE orders SET version = version + 1, status = $3, document = $4, updated_at = $5
		WHERE id = $1 AND version = $2`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. A taken order number is reported as
// order.ErrDuplicateOrderNumber.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	doc, err := json.Marshal(o)
	if err != nil {
		return errors.Wrap(err, "encode order")
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.OrderNumber, o.CustomerID, o.StoreID, string(o.Status), o.Version, doc, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == orderNumberConstraint {
			return order.ErrDuplicateOrderNumber
		}
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

// Get returns an order by ID.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return collectOrder(rows)
}

// GetByNumber returns an order by its order number.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByNumberSQL, number)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", number)
	}
	return collectOrder(rows)
}

// ListByCustomer returns the customer's orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByCustomerSQL, customerID)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders for %q", customerID)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders for %q", customerID)
	}
	return orders, nil
}

// Update replaces the stored order when its version still equals o.Version.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	next := *o
	next.Version++
	doc, err := json.Marshal(&next)
	if err != nil {
		return errors.Wrap(err, "encode order")
	}

	tag, err := r.pool.Exec(ctx, updateOrderSQL, o.ID, o.Version, string(o.Status), doc, o.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "update order %q", o.ID)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, orderExistsSQL, o.ID).Scan(&exists); err != nil {
			return errors.Wrapf(err, "check order %q", o.ID)
		}
		if !exists {
			return order.ErrNotFound
		}
		return order.ErrConflict
	}
	o.Version = next.Version
	return nil
}

func collectOrder(rows pgx.Rows) (*order.Order, error) {
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan order")
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o       order.Order
		version int64
		doc     []byte
	)
	if err := row.Scan(&version, &doc); err != nil {
		return o, err
	}
	if err := json.Unmarshal(doc, &o); err != nil {
		return o, errors.Wrap(err, "decode order")
	}
	o.Version = version
	return o, nil
}
