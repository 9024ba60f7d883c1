package handler

import (
	"github.com/go-faster/jx"

	"github.com/xenking/bazaar/internal/domain/cart"
	"github.com/xenking/bazaar/internal/domain/order"
	"github.com/xenking/bazaar/internal/domain/product"
)

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	fieldStr(e, "id", p.ID)
	fieldStr(e, "storeId", p.StoreID)
	fieldStr(e, "vendorId", p.VendorID)
	fieldStr(e, "name", p.Name)
	fieldStrOmit(e, "sku", p.SKU)
	fieldDecimal(e, "price", p.Price)
	if !p.OriginalPrice.IsZero() {
		fieldDecimal(e, "originalPrice", p.OriginalPrice)
	}
	fieldDecimal(e, "gstRate", p.GSTRate)
	fieldInt(e, "stock", p.Stock)
	if len(p.Variants) > 0 {
		e.FieldStart("variants")
		e.ArrStart()
		for _, v := range p.Variants {
			e.ObjStart()
			fieldStr(e, "name", v.Name)
			fieldStr(e, "value", v.Value)
			fieldStr(e, "sku", v.SKU)
			if !v.Price.IsZero() {
				fieldDecimal(e, "price", v.Price)
				fieldDecimal(e, "originalPrice", v.OriginalPrice)
			}
			fieldInt(e, "stock", v.Stock)
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	e.ObjEnd()
}

func encodeVariant(e *jx.Encoder, v *cart.Variant) {
	if v == nil {
		return
	}
	e.FieldStart("variant")
	e.ObjStart()
	fieldStr(e, "name", v.Name)
	fieldStr(e, "value", v.Value)
	fieldStr(e, "sku", v.SKU)
	e.ObjEnd()
}

func encodeCart(e *jx.Encoder, c *cart.Cart) {
	e.ObjStart()
	fieldStr(e, "id", c.ID)
	fieldStr(e, "customerId", c.CustomerID)
	e.FieldStart("items")
	e.ArrStart()
	for i := range c.Items {
		it := &c.Items[i]
		e.ObjStart()
		fieldStr(e, "productId", it.ProductID)
		fieldStr(e, "storeId", it.StoreID)
		fieldStr(e, "vendorId", it.VendorID)
		fieldStr(e, "name", it.Name)
		encodeVariant(e, it.Variant)
		fieldInt(e, "quantity", it.Quantity)
		fieldDecimal(e, "unitPrice", it.UnitPrice)
		fieldDecimal(e, "originalPrice", it.OriginalPrice)
		fieldDecimal(e, "gstRate", it.GSTRate)
		fieldDecimal(e, "totalPrice", it.TotalPrice)
		fieldDecimal(e, "discount", it.Discount)
		fieldTime(e, "addedAt", it.AddedAt)
		fieldTime(e, "updatedAt", it.UpdatedAt)
		e.ObjEnd()
	}
	e.ArrEnd()
	if ac := c.AppliedCoupon; ac != nil {
		e.FieldStart("appliedCoupon")
		e.ObjStart()
		fieldStr(e, "code", ac.Code)
		fieldDecimal(e, "discount", ac.Discount)
		fieldStr(e, "discountType", string(ac.DiscountType))
		fieldTime(e, "appliedAt", ac.AppliedAt)
		e.ObjEnd()
	}
	fieldDecimal(e, "subtotal", c.Subtotal)
	fieldDecimal(e, "itemDiscount", c.ItemDiscount)
	fieldDecimal(e, "couponDiscount", c.CouponDiscount)
	fieldDecimal(e, "totalDiscount", c.TotalDiscount)
	fieldDecimal(e, "total", c.Total)
	fieldInt(e, "itemCount", len(c.Items))
	fieldTime(e, "lastUpdated", c.LastUpdated)
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	fieldStr(e, "id", o.ID)
	fieldStr(e, "orderNumber", o.OrderNumber)
	fieldStr(e, "customerId", o.CustomerID)
	fieldStr(e, "storeId", o.StoreID)
	fieldStr(e, "vendorId", o.VendorID)

	e.FieldStart("items")
	e.ArrStart()
	for i := range o.Items {
		it := &o.Items[i]
		e.ObjStart()
		fieldStr(e, "productId", it.ProductID)
		fieldStr(e, "name", it.Name)
		encodeVariant(e, it.Variant)
		fieldInt(e, "quantity", it.Quantity)
		fieldDecimal(e, "unitPrice", it.UnitPrice)
		fieldDecimal(e, "originalPrice", it.OriginalPrice)
		fieldDecimal(e, "totalPrice", it.TotalPrice)
		fieldDecimal(e, "discount", it.Discount)
		fieldDecimal(e, "gstRate", it.GSTRate)
		fieldDecimal(e, "gstAmount", it.GSTAmount)
		if it.Coupon != nil {
			e.FieldStart("coupon")
			e.ObjStart()
			fieldStr(e, "code", it.Coupon.Code)
			fieldDecimal(e, "discount", it.Coupon.Discount)
			e.ObjEnd()
		}
		e.ObjEnd()
	}
	e.ArrEnd()
	fieldStrOmit(e, "couponCode", o.CouponCode)

	p := o.Pricing
	e.FieldStart("pricing")
	e.ObjStart()
	fieldDecimal(e, "subtotal", p.Subtotal)
	fieldDecimal(e, "tax", p.Tax)
	fieldDecimal(e, "shipping", p.Shipping)
	fieldDecimal(e, "discount", p.Discount)
	fieldDecimal(e, "couponDiscount", p.CouponDiscount)
	fieldDecimal(e, "total", p.Total)
	fieldStr(e, "currency", p.Currency)
	e.ObjEnd()

	pay := o.Payment
	e.FieldStart("payment")
	e.ObjStart()
	fieldStr(e, "method", string(pay.Method))
	fieldStr(e, "status", string(pay.Status))
	fieldStrOmit(e, "transactionId", pay.TransactionID)
	fieldDecimal(e, "amount", pay.Amount)
	fieldTimeOmit(e, "paidAt", pay.PaidAt)
	if pay.RefundedAt != nil {
		fieldDecimal(e, "refundAmount", pay.RefundAmount)
		fieldStrOmit(e, "refundReason", pay.RefundReason)
		fieldTime(e, "refundedAt", *pay.RefundedAt)
	}
	e.ObjEnd()

	s := o.Shipping
	e.FieldStart("shipping")
	e.ObjStart()
	e.FieldStart("address")
	e.ObjStart()
	fieldStr(e, "name", s.Address.Name)
	fieldStr(e, "phone", s.Address.Phone)
	fieldStr(e, "line1", s.Address.Line1)
	fieldStrOmit(e, "line2", s.Address.Line2)
	fieldStr(e, "city", s.Address.City)
	fieldStr(e, "state", s.Address.State)
	fieldStr(e, "postalCode", s.Address.PostalCode)
	fieldStr(e, "country", s.Address.Country)
	e.ObjEnd()
	fieldStr(e, "method", s.Method)
	fieldDecimal(e, "cost", s.Cost)
	fieldStrOmit(e, "carrier", s.Carrier)
	fieldStrOmit(e, "trackingNumber", s.TrackingNumber)
	fieldStrOmit(e, "trackingUrl", s.TrackingURL)
	fieldTimeOmit(e, "estimatedDelivery", s.EstimatedDelivery)
	e.ObjEnd()

	fieldStr(e, "status", string(o.Status))
	e.FieldStart("statusHistory")
	e.ArrStart()
	for _, h := range o.StatusHistory {
		e.ObjStart()
		fieldStr(e, "status", string(h.Status))
		fieldTime(e, "timestamp", h.Timestamp)
		fieldStrOmit(e, "note", h.Note)
		fieldStrOmit(e, "updatedBy", h.UpdatedBy)
		e.ObjEnd()
	}
	e.ArrEnd()
	fieldStrOmit(e, "notes", o.Notes)

	fieldTimeOmit(e, "confirmedAt", o.ConfirmedAt)
	fieldTimeOmit(e, "shippedAt", o.ShippedAt)
	fieldTimeOmit(e, "deliveredAt", o.DeliveredAt)
	fieldTimeOmit(e, "cancelledAt", o.CancelledAt)
	fieldTime(e, "createdAt", o.CreatedAt)
	fieldTime(e, "updatedAt", o.UpdatedAt)
	e.ObjEnd()
}

func encodeError(e *jx.Encoder, code int, field, message string) {
	e.ObjStart()
	e.FieldStart("code")
	e.Int(code)
	fieldStrOmit(e, "field", field)
	fieldStr(e, "message", message)
	e.ObjEnd()
}
