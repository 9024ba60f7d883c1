package cart

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a customer has no cart yet.
	ErrNotFound = errors.New("cart not found")
	// ErrItemNotFound is returned when a quantity update targets a line the cart does not hold.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrAlreadyExists is returned by Repository.Create when the customer already owns a cart.
	ErrAlreadyExists = errors.New("cart already exists")
	// ErrConflict is returned by Repository.Update when the stored version moved on.
	ErrConflict = errors.New("cart was modified concurrently")
	// ErrQuantityLimitExceeded is matched by *QuantityLimitError.
	ErrQuantityLimitExceeded = errors.New("quantity limit exceeded")
)

// QuantityLimitError reports a line whose quantity would exceed MaxQuantity.
type QuantityLimitError struct {
	ProductID string
	Quantity  int
}

func (e *QuantityLimitError) Error() string {
	return fmt.Sprintf("quantity %d for product %s exceeds limit of %d", e.Quantity, e.ProductID, MaxQuantity)
}

// Is makes errors.Is(err, ErrQuantityLimitExceeded) match.
func (e *QuantityLimitError) Is(target error) bool {
	return target == ErrQuantityLimitExceeded
}
