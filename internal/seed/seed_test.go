package seed

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/bazaar/db"
	"github.com/xenking/bazaar/internal/domain/coupon"
	"github.com/xenking/bazaar/internal/domain/product"
	"github.com/xenking/bazaar/internal/storage/memory"
)

func TestApply_SampleCatalog(t *testing.T) {
	ctx := context.Background()
	c, err := Decode(bytes.NewReader(db.SampleCatalog))
	require.NoError(t, err)

	products := memory.NewProductRepository()
	coupons := memory.NewCouponRepository()
	stats, err := Apply(ctx, c, products, coupons, 4)
	require.NoError(t, err)
	assert.Equal(t, len(c.Products), stats.Products)
	assert.Equal(t, 3, stats.Coupons)

	rice, err := products.GetByID(ctx, "rice-basmati")
	require.NoError(t, err)
	assert.Equal(t, "store-annapurna", rice.StoreID)
	assert.Len(t, rice.Variants, 2)
	q, err := rice.Quote("ANN-RICE-BAS-1")
	require.NoError(t, err)
	assert.Equal(t, "140", q.UnitPrice.String())

	rule, err := coupons.FindByCode(ctx, "welcome10")
	require.NoError(t, err)
	assert.Equal(t, coupon.DiscountPercentage, rule.DiscountType)
	assert.Equal(t, "200", rule.MaxDiscount.String())

	festive, err := coupons.FindByCode(ctx, "FESTIVE25")
	require.NoError(t, err)
	require.NotNil(t, festive.ValidUntil)
	assert.Equal(t, 500, festive.MaxUses)
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{"products":[`, "decode catalog"},
		{"missing store", `{"products":[{"id":"p1","name":"x","price":1}]}`, "storeId"},
		{"duplicate id", `{"products":[{"id":"p1","storeId":"s"},{"id":"p1","storeId":"s"}]}`, "duplicate"},
		{"negative price", `{"products":[{"id":"p1","storeId":"s","price":-1}]}`, "negative price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCouponRule(t *testing.T) {
	_, err := Coupon{Code: "X", DiscountType: "free_lowest"}.Rule()
	assert.ErrorContains(t, err, "unknown discount type")

	_, err = Coupon{Code: "  "}.Rule()
	assert.ErrorContains(t, err, "empty")

	rule, err := Coupon{Code: " save5 ", DiscountType: "FIXED"}.Rule()
	require.NoError(t, err)
	assert.Equal(t, "SAVE5", rule.Code)
	assert.Equal(t, coupon.DiscountFixed, rule.DiscountType)
}

type failingWriter struct{}

func (failingWriter) Upsert(context.Context, product.Product) error {
	return errors.New("disk full")
}

func TestApply_WriteError(t *testing.T) {
	c := &Catalog{Products: []product.Product{{ID: "p1", StoreID: "s1"}}}
	_, err := Apply(context.Background(), c, failingWriter{}, memory.NewCouponRepository(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert product p1")
}
