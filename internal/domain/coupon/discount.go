package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/bazaar/internal/domain/money"
)

var hundred = decimal.NewFromInt(100)

// Apply calculates the discount for the given rule and cart items.
// It returns ErrMinimumNotMet when the cart does not satisfy the rule's
// minimum item count or minimum spend.
func Apply(rule *Rule, items []Item) (Discount, error) {
	if rule.MinItems > 0 && totalQuantity(items) < rule.MinItems {
		return Discount{}, ErrMinimumNotMet
	}

	subtotal := calcSubtotal(items)
	if rule.MinSpend.IsPositive() && subtotal.LessThan(rule.MinSpend) {
		return Discount{}, ErrMinimumNotMet
	}

	var amount decimal.Decimal
	switch rule.DiscountType {
	case DiscountPercentage:
		if rule.Value.IsNegative() || rule.Value.GreaterThan(hundred) {
			return Discount{}, errors.Errorf("percentage %s out of range", rule.Value)
		}
		amount = money.Percent(subtotal, rule.Value)
		if rule.MaxDiscount.IsPositive() {
			amount = decimal.Min(amount, rule.MaxDiscount)
		}
	case DiscountFixed:
		amount = decimal.Min(rule.Value, subtotal)
	default:
		return Discount{}, errors.Errorf("unsupported discount type: %q", rule.DiscountType)
	}

	return Discount{
		Code:        rule.Code,
		Type:        rule.DiscountType,
		Value:       rule.Value,
		Amount:      money.Round(money.FloorAtZero(amount)),
		MaxDiscount: rule.MaxDiscount,
		Description: rule.Description,
	}, nil
}

// calcSubtotal returns the sum of price * quantity across all items.
func calcSubtotal(items []Item) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(money.LineTotal(item.Price, item.Quantity))
	}
	return sum
}

// totalQuantity returns the sum of quantities across all items.
func totalQuantity(items []Item) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}
