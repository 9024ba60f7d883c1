package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xenking/bazaar/internal/domain/coupon"
	"github.com/xenking/bazaar/internal/domain/product"
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository is an in-memory product.Repository.
type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]product.Product
}

// NewProductRepository returns a ProductRepository holding products.
func NewProductRepository(products ...product.Product) *ProductRepository {
	r := &ProductRepository{products: make(map[string]product.Product, len(products))}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

// Upsert stores p, replacing any product with the same ID.
func (r *ProductRepository) Upsert(_ context.Context, p product.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
	return nil
}

func (r *ProductRepository) List(_ context.Context) ([]product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]product.Product, 0, len(r.products))
	for _, p := range r.products {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *ProductRepository) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (r *ProductRepository) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository is an in-memory coupon.Repository keyed by normalized code.
type CouponRepository struct {
	mu    sync.Mutex
	rules map[string]coupon.Rule
	now   func() time.Time
}

// NewCouponRepository returns a CouponRepository holding rules.
func NewCouponRepository(rules ...coupon.Rule) *CouponRepository {
	r := &CouponRepository{rules: make(map[string]coupon.Rule, len(rules)), now: time.Now}
	for _, rule := range rules {
		rule.Code = coupon.NormalizeCode(rule.Code)
		r.rules[rule.Code] = rule
	}
	return r
}

// Upsert stores rule, keeping the usage counter of an existing rule.
func (r *CouponRepository) Upsert(_ context.Context, rule coupon.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule.Code = coupon.NormalizeCode(rule.Code)
	if existing, ok := r.rules[rule.Code]; ok {
		rule.Uses = existing.Uses
	}
	r.rules[rule.Code] = rule
	return nil
}

func (r *CouponRepository) FindByCode(_ context.Context, code string) (*coupon.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rule, ok := r.rules[coupon.NormalizeCode(code)]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	return &rule, nil
}

func (r *CouponRepository) IncrementUses(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := coupon.NormalizeCode(code)
	rule, ok := r.rules[key]
	if !ok {
		return coupon.ErrInvalidCoupon
	}
	rule.Uses++
	r.rules[key] = rule
	return nil
}

func (r *CouponRepository) ListActiveCodes(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	codes := make([]string, 0, len(r.rules))
	for code, rule := range r.rules {
		if rule.ValidUntil != nil && !rule.ValidUntil.After(now) {
			continue
		}
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}
