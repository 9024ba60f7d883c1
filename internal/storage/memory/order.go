package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/xenking/bazaar/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository is an in-memory order.Repository with a unique index on
// order numbers.
type OrderRepository struct {
	mu       sync.RWMutex
	orders   map[string]*order.Order
	byNumber map[string]string
}

// NewOrderRepository returns an empty OrderRepository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:   make(map[string]*order.Order),
		byNumber: make(map[string]string),
	}
}

func (r *OrderRepository) Create(_ context.Context, o *order.Order) error {
	stored, err := clone(o)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byNumber[o.OrderNumber]; ok {
		return order.ErrDuplicateOrderNumber
	}
	r.orders[o.ID] = stored
	r.byNumber[o.OrderNumber] = o.ID
	return nil
}

func (r *OrderRepository) Get(_ context.Context, id string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return clone(o)
}

func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	r.mu.RLock()
	id, ok := r.byNumber[number]
	r.mu.RUnlock()
	if !ok {
		return nil, order.ErrNotFound
	}
	return r.Get(ctx, id)
}

func (r *OrderRepository) ListByCustomer(_ context.Context, customerID string) ([]order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []order.Order
	for _, o := range r.orders {
		if o.CustomerID != customerID {
			continue
		}
		c, err := clone(o)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *OrderRepository) Update(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[o.ID]
	if !ok {
		return order.ErrNotFound
	}
	if current.Version != o.Version {
		return order.ErrConflict
	}

	o.Version++
	stored, err := clone(o)
	if err != nil {
		o.Version--
		return err
	}
	r.orders[o.ID] = stored
	return nil
}
