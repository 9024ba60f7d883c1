package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bazaar/internal/domain/cart"
	"github.com/xenking/bazaar/internal/domain/coupon"
	"github.com/xenking/bazaar/internal/domain/order"
	"github.com/xenking/bazaar/internal/domain/product"
	"github.com/xenking/bazaar/internal/domain/validation"
)

// writeError maps a domain error to a status code and writes it. Unknown
// errors are logged and reported as 500 without their message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, field, message := mapError(err)
	if status == http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		message = http.StatusText(status)
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	writeJSON(w, r, status, func(e *jx.Encoder) {
		encodeError(e, status, field, message)
	})
}

func mapError(err error) (status int, field, message string) {
	var ve *validation.Error
	if errors.As(err, &ve) {
		return http.StatusBadRequest, ve.Field, ve.Message
	}

	var te *order.TransitionError
	if errors.As(err, &te) {
		return http.StatusConflict, "status", te.Error()
	}

	var qe *cart.QuantityLimitError
	if errors.As(err, &qe) {
		return http.StatusUnprocessableEntity, "quantity", qe.Error()
	}

	switch {
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, product.ErrVariantNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "", err.Error()
	case errors.Is(err, product.ErrInactive):
		return http.StatusUnprocessableEntity, "productId", err.Error()
	case errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, coupon.ErrCouponExpired),
		errors.Is(err, coupon.ErrCouponUsageLimitReached),
		errors.Is(err, coupon.ErrMinimumNotMet):
		return http.StatusUnprocessableEntity, "code", err.Error()
	case errors.Is(err, cart.ErrConflict), errors.Is(err, order.ErrConflict):
		return http.StatusConflict, "", err.Error()
	}
	return http.StatusInternalServerError, "", ""
}
