package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bazaar/internal/domain/cart"
)

const (
	getCartSQL = `SELECT version, document FROM carts WHERE customer_id = $1`

	createCartSQL = `INSERT INTO carts (customer_id, id, version, document, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (customer_id) DO NOTHING`

	updateCartSQL = `UPDATE carts SET version = version + 1, document = $3, updated_at = $4
		WHERE customer_id = $1 AND version = $2`

	cartExistsSQL = `SELECT EXISTS (SELECT 1 FROM carts WHERE customer_id = $1)`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// Get returns the customer's cart or cart.ErrNotFound.
func (r *CartRepository) Get(ctx context.Context, customerID string) (*cart.Cart, error) {
	var (
		version int64
		doc     []byte
	)
	err := r.pool.QueryRow(ctx, getCartSQL, customerID).Scan(&version, &doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get cart for %q", customerID)
	}

	var c cart.Cart
	if err := json.Unmarshal(doc, &c); err != nil {
		return nil, errors.Wrapf(err, "decode cart for %q", customerID)
	}
	c.Version = version
	return &c, nil
}

// Create stores a new cart. It fails with cart.ErrAlreadyExists when the
// customer already has one.
func (r *CartRepository) Create(ctx context.Context, c *cart.Cart) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encode cart")
	}
	tag, err := r.pool.Exec(ctx, createCartSQL, c.CustomerID, c.ID, c.Version, doc, c.LastUpdated)
	if err != nil {
		return errors.Wrapf(err, "create cart for %q", c.CustomerID)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrAlreadyExists
	}
	return nil
}

// Update replaces the stored cart when its version still equals c.Version.
func (r *CartRepository) Update(ctx context.Context, c *cart.Cart) error {
	next := *c
	next.Version++
	doc, err := json.Marshal(&next)
	if err != nil {
		return errors.Wrap(err, "encode cart")
	}

	tag, err := r.pool.Exec(ctx, updateCartSQL, c.CustomerID, c.Version, doc, c.LastUpdated)
	if err != nil {
		return errors.Wrapf(err, "update cart for %q", c.CustomerID)
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, c.CustomerID)
	}
	c.Version = next.Version
	return nil
}

func (r *CartRepository) missOrConflict(ctx context.Context, customerID string) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, cartExistsSQL, customerID).Scan(&exists); err != nil {
		return errors.Wrapf(err, "check cart for %q", customerID)
	}
	if !exists {
		return cart.ErrNotFound
	}
	return cart.ErrConflict
}
