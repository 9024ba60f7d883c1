package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bazaar/internal/domain/product"
)

type countingRepo struct {
	products map[string]product.Product
	calls    int
}

func (r *countingRepo) List(_ context.Context) ([]product.Product, error) {
	r.calls++
	out := make([]product.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	return out, nil
}

func (r *countingRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	r.calls++
	p, ok := r.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (r *countingRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	r.calls++
	var out []product.Product
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func sampleRepo() *countingRepo {
	return &countingRepo{products: map[string]product.Product{
		"p1": {ID: "p1", Name: "Shirt", Price: decimal.NewFromInt(100), Active: true},
		"p2": {ID: "p2", Name: "Hat", Price: decimal.NewFromInt(25), Active: true},
	}}
}

// unreachable returns a client whose every command fails fast.
func unreachable(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCatalog_FallsThroughWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	repo := sampleRepo()
	c := NewCatalog(repo, unreachable(t), time.Minute)

	p, err := c.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Shirt", p.Name)

	_, err = c.GetByID(ctx, "missing")
	require.ErrorIs(t, err, product.ErrNotFound)

	list, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	got, err := c.GetByIDs(ctx, []string{"p2", "p1", "zz"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p2", got[0].ID)
	assert.Equal(t, "p1", got[1].ID)

	assert.Equal(t, 4, repo.calls)
	assert.Error(t, c.Invalidate(ctx, "p1"))
}

func TestCatalog_GetByIDsEmpty(t *testing.T) {
	repo := sampleRepo()
	c := NewCatalog(repo, unreachable(t), time.Minute)

	got, err := c.GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, repo.calls)
}
