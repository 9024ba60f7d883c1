package memory

import (
	"context"
	"sync"

	"github.com/xenking/bazaar/internal/domain/cart"
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository is an in-memory cart.Repository.
type CartRepository struct {
	mu    sync.Mutex
	carts map[string]*cart.Cart
}

// NewCartRepository returns an empty CartRepository.
func NewCartRepository() *CartRepository {
	return &CartRepository{carts: make(map[string]*cart.Cart)}
}

func (r *CartRepository) Get(_ context.Context, customerID string) (*cart.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.carts[customerID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return clone(c)
}

func (r *CartRepository) Create(_ context.Context, c *cart.Cart) error {
	stored, err := clone(c)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.carts[c.CustomerID]; ok {
		return cart.ErrAlreadyExists
	}
	r.carts[c.CustomerID] = stored
	return nil
}

func (r *CartRepository) Update(_ context.Context, c *cart.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.carts[c.CustomerID]
	if !ok {
		return cart.ErrNotFound
	}
	if current.Version != c.Version {
		return cart.ErrConflict
	}

	c.Version++
	stored, err := clone(c)
	if err != nil {
		c.Version--
		return err
	}
	r.carts[c.CustomerID] = stored
	return nil
}
