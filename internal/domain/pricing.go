package domain

// Fee schedule. Amounts are in the smallest currency unit.
const (
	// ShippingFeeRegular is charged on orders shipped at the regular tier.
	ShippingFeeRegular int64 = 10000
	// ShippingFeeExpress is charged on orders shipped at the express tier.
	ShippingFeeExpress int64 = 20000
	// OrderAdminFee is the flat platform fee on every order.
	OrderAdminFee int64 = 10000
	// BookingAdminFee is the flat platform fee on every booking.
	BookingAdminFee int64 = 1000
)

// OrderCharges is the monetary breakdown of an order. Total is always
// Subtotal + ShippingFee + AdminFee.
type OrderCharges struct {
	Subtotal    int64
	ShippingFee int64
	AdminFee    int64
	Total       int64
}

// BookingCharges is the monetary breakdown of a booking. Total is
// always Subtotal + AdminFee.
type BookingCharges struct {
	Subtotal int64
	AdminFee int64
	Total    int64
}

// CartSubtotal sums unit price times quantity across the items.
func CartSubtotal(items []CartItem) int64 {
	var subtotal int64
	for _, item := range items {
		subtotal += item.UnitPrice * int64(item.Quantity)
	}
	return subtotal
}

// CartItemCount sums the quantities across the items.
func CartItemCount(items []CartItem) int {
	var count int
	for _, item := range items {
		count += item.Quantity
	}
	return count
}

// ShippingFeeFor returns the delivery charge for the method. Unknown
// methods price at the regular tier.
func ShippingFeeFor(method ShippingMethod) int64 {
	if method == ShippingExpress {
		return ShippingFeeExpress
	}
	return ShippingFeeRegular
}

// PriceOrder computes the full charge breakdown for a cart checked out
// with the given shipping method.
func PriceOrder(items []CartItem, method ShippingMethod) OrderCharges {
	charges := OrderCharges{
		Subtotal:    CartSubtotal(items),
		ShippingFee: ShippingFeeFor(method),
		AdminFee:    OrderAdminFee,
	}
	charges.Total = charges.Subtotal + charges.ShippingFee + charges.AdminFee
	return charges
}

// PriceBooking computes the charge breakdown for a consultation at the
// doctor's fee.
func PriceBooking(consultationFee int64) BookingCharges {
	charges := BookingCharges{
		Subtotal: consultationFee,
		AdminFee: BookingAdminFee,
	}
	charges.Total = charges.Subtotal + charges.AdminFee
	return charges
}

// SummarizeCart prices a cart for display. Shipping is quoted at the
// regular tier; the final fee is fixed at checkout.
func SummarizeCart(cart Cart) CartSummary {
	charges := PriceOrder(cart.Items, ShippingRegular)
	return CartSummary{
		Items:       cart.Items,
		TotalItems:  CartItemCount(cart.Items),
		Subtotal:    charges.Subtotal,
		ShippingFee: charges.ShippingFee,
		AdminFee:    charges.AdminFee,
		Total:       charges.Total,
		UpdatedAt:   cart.UpdatedAt,
	}
}
