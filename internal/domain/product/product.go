package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a requested product does not exist.
	ErrNotFound = errors.New("product not found")
	// ErrVariantNotFound is returned when a product has no variant with the requested SKU.
	ErrVariantNotFound = errors.New("product variant not found")
	// ErrInactive is returned when a product exists but is not for sale.
	ErrInactive = errors.New("product is not available")
)

// Product is a catalog item sold by one store.
type Product struct {
	ID       string `json:"id"`
	StoreID  string `json:"storeId"`
	VendorID string `json:"vendorId"`
	Name     string `json:"name"`
	SKU      string `json:"sku"`
	// Price is the current selling price; OriginalPrice is the list price
	// it is discounted from. OriginalPrice may be zero.
	Price         decimal.Decimal `json:"price"`
	OriginalPrice decimal.Decimal `json:"originalPrice"`
	// GSTRate is the tax rate in percent.
	GSTRate  decimal.Decimal `json:"gstRate"`
	Stock    int             `json:"stock"`
	Active   bool            `json:"active"`
	Variants []Variant       `json:"variants,omitempty"`
}

// Variant is a purchasable configuration of a product such as a size.
type Variant struct {
	Name          string          `json:"name"`
	Value         string          `json:"value"`
	SKU           string          `json:"sku"`
	Price         decimal.Decimal `json:"price"`
	OriginalPrice decimal.Decimal `json:"originalPrice"`
	Stock         int             `json:"stock"`
}

// Quote is the current price and availability of a product or one of its
// variants.
type Quote struct {
	UnitPrice     decimal.Decimal
	OriginalPrice decimal.Decimal
	GSTRate       decimal.Decimal
	Stock         int
	Variant       *Variant
}

// Quote resolves the live price for the base product, or for the variant
// identified by variantSKU when it is non-empty. A variant with a zero
// price inherits the base prices.
func (p *Product) Quote(variantSKU string) (Quote, error) {
	if !p.Active {
		return Quote{}, ErrInactive
	}
	q := Quote{
		UnitPrice:     p.Price,
		OriginalPrice: p.OriginalPrice,
		GSTRate:       p.GSTRate,
		Stock:         p.Stock,
	}
	if variantSKU == "" {
		return q, nil
	}
	for i := range p.Variants {
		v := p.Variants[i]
		if v.SKU != variantSKU {
			continue
		}
		if !v.Price.IsZero() {
			q.UnitPrice = v.Price
			q.OriginalPrice = v.OriginalPrice
		}
		q.Stock = v.Stock
		q.Variant = &v
		return q, nil
	}
	return Quote{}, ErrVariantNotFound
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
