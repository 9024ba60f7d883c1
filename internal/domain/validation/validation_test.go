package validation

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	err := New("quantity", "must be between %d and %d", 1, 999)
	assert.Equal(t, "quantity: must be between 1 and 999", err.Error())

	wrapped := errors.Wrap(err, "add item")
	assert.True(t, IsValidation(wrapped))
	assert.False(t, IsValidation(errors.New("boom")))

	assert.Equal(t, "bad", (&Error{Message: "bad"}).Error())
}
