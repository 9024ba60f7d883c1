package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/bazaar/internal/domain/cart"
)

func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, c *cart.Cart, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		encodeCart(e, c)
	})
}

// lineKey identifies the line addressed by the URL. The variant is
// selected with the "variant" query parameter.
func lineKey(r *http.Request) cart.Key {
	return cart.Key{
		ProductID:  chi.URLParam(r, "productID"),
		VariantSKU: r.URL.Query().Get("variant"),
	}
}

// GetCart returns the caller's cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.carts.Get(r.Context(), id)
	h.writeCart(w, r, c, err)
}

// ClearCart empties the caller's cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.carts.Clear(r.Context(), id)
	h.writeCart(w, r, c, err)
}

// AddCartItem adds a product to the caller's cart.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req := cart.AddItemRequest{Quantity: 1}
	if err := readBody(r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			req.ProductID, err = d.Str()
		case "variantSku":
			req.VariantSKU, err = d.Str()
		case "quantity":
			req.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.carts.AddItem(r.Context(), id, req)
	h.writeCart(w, r, c, err)
}

// UpdateCartItem sets the quantity of a line. Zero removes it.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var quantity int
	if err := readBody(r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		var err error
		quantity, err = d.Int()
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.carts.UpdateItemQuantity(r.Context(), id, lineKey(r), quantity)
	h.writeCart(w, r, c, err)
}

// RemoveCartItem removes a line from the caller's cart.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.carts.RemoveItem(r.Context(), id, lineKey(r))
	h.writeCart(w, r, c, err)
}

// ApplyCoupon applies a coupon code to the caller's cart.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var code string
	if err := readBody(r, func(d *jx.Decoder, key string) error {
		if key != "code" {
			return d.Skip()
		}
		var err error
		code, err = d.Str()
		return err
	}); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.carts.ApplyCoupon(r.Context(), id, code)
	h.writeCart(w, r, c, err)
}

// RemoveCoupon drops the coupon from the caller's cart.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := customerID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.carts.RemoveCoupon(r.Context(), id)
	h.writeCart(w, r, c, err)
}
