package order

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NumberPrefix starts every order number.
const NumberPrefix = "ORD"

// NewNumber returns an order number made of a fixed prefix, the UTC time to
// the second, and six random hex characters. Uniqueness is enforced by the
// repository.
func NewNumber(now time.Time) string {
	id := uuid.New()
	return NumberPrefix + now.UTC().Format("20060102150405") + strings.ToUpper(hex.EncodeToString(id[:3]))
}
