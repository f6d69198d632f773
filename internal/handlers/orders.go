package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/pawmart/api/internal/domain"
	"github.com/pawmart/api/internal/platform/httpx"
	"github.com/pawmart/api/internal/services"
)

// OrderHandlers exposes the authenticated order endpoints.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs handlers backed by the order service.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{orderID}", h.get)
	r.Patch("/{orderID}/confirm", h.confirmReceived)
	r.Patch("/{orderID}/cancel", h.cancel)
}

func (h *OrderHandlers) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.CreateFromCart(ctx, services.CreateOrderCommand{
		UserID: identity.UID,
		ShippingAddress: domain.ShippingAddress{
			Name:       req.ShippingAddress.Name,
			Phone:      req.ShippingAddress.Phone,
			Address:    req.ShippingAddress.Address,
			City:       req.ShippingAddress.City,
			PostalCode: req.ShippingAddress.PostalCode,
		},
		ShippingMethod: domain.ShippingMethod(strings.ToLower(strings.TrimSpace(req.ShippingMethod))),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	cmd := services.ListOrdersCommand{
		UserID: identity.UID,
		Status: domain.OrderStatus(strings.ToLower(strings.TrimSpace(query.Get("status")))),
	}
	if raw := strings.TrimSpace(query.Get("page")); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page must be a number", http.StatusBadRequest))
			return
		}
		cmd.Page = page
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a number", http.StatusBadRequest))
			return
		}
		cmd.Limit = limit
	}

	orders, err := h.orders.ListOrders(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		payload = append(payload, buildOrderPayload(order))
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{Orders: payload})
}

func (h *OrderHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, identity.UID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) confirmReceived(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	order, err := h.orders.ConfirmReceived(ctx, identity.UID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	order, err := h.orders.CancelOrder(ctx, identity.UID, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

type createOrderRequest struct {
	ShippingAddress shippingAddressPayload `json:"shipping_address"`
	ShippingMethod  string                 `json:"shipping_method"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderListResponse struct {
	Orders []orderPayload `json:"orders"`
}

type orderPayload struct {
	ID              string                 `json:"id"`
	OrderNumber     string                 `json:"order_number"`
	Status          string                 `json:"status"`
	Items           []orderItemPayload     `json:"items"`
	ShippingAddress shippingAddressPayload `json:"shipping_address"`
	ShippingMethod  string                 `json:"shipping_method"`
	Subtotal        int64                  `json:"subtotal"`
	ShippingFee     int64                  `json:"shipping_fee"`
	AdminFee        int64                  `json:"admin_fee"`
	Total           int64                  `json:"total"`
	PaymentID       string                 `json:"payment_id,omitempty"`
	CreatedAt       string                 `json:"created_at,omitempty"`
	CancelledAt     string                 `json:"cancelled_at,omitempty"`
}

type orderItemPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}

type shippingAddressPayload struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Status:      string(order.Status),
		Items:       make([]orderItemPayload, 0, len(order.Items)),
		ShippingAddress: shippingAddressPayload{
			Name:       order.ShippingAddress.Name,
			Phone:      order.ShippingAddress.Phone,
			Address:    order.ShippingAddress.Address,
			City:       order.ShippingAddress.City,
			PostalCode: order.ShippingAddress.PostalCode,
		},
		ShippingMethod: string(order.ShippingMethod),
		Subtotal:       order.Subtotal,
		ShippingFee:    order.ShippingFee,
		AdminFee:       order.AdminFee,
		Total:          order.Total,
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.UnitPrice * int64(item.Quantity),
		})
	}
	if order.PaymentID != nil {
		payload.PaymentID = *order.PaymentID
	}
	if !order.CreatedAt.IsZero() {
		payload.CreatedAt = order.CreatedAt.UTC().Format(timeFormat)
	}
	if order.CancelledAt != nil {
		payload.CancelledAt = order.CancelledAt.UTC().Format(timeFormat)
	}
	return payload
}
