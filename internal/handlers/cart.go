package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/pawmart/api/internal/domain"
	"github.com/pawmart/api/internal/platform/httpx"
	"github.com/pawmart/api/internal/services"
)

// CartHandlers exposes the authenticated cart endpoints.
type CartHandlers struct {
	carts services.CartService
}

// NewCartHandlers constructs handlers backed by the cart service.
func NewCartHandlers(carts services.CartService) *CartHandlers {
	return &CartHandlers{carts: carts}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getSummary)
	r.Post("/items", h.addItem)
	r.Put("/items/{productID}", h.updateItem)
	r.Delete("/items/{productID}", h.removeItem)
	r.Delete("/", h.clear)
}

func (h *CartHandlers) getSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	summary, err := h.carts.GetSummary(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: buildCartSummaryPayload(summary)})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	var req cartItemRequest
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	summary, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		UserID:    identity.UID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, cartResponse{Cart: buildCartSummaryPayload(summary)})
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	var req cartQuantityRequest
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	summary, err := h.carts.UpdateItem(ctx, services.UpdateCartItemCommand{
		UserID:    identity.UID,
		ProductID: chi.URLParam(r, "productID"),
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: buildCartSummaryPayload(summary)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	summary, err := h.carts.RemoveItem(ctx, identity.UID, chi.URLParam(r, "productID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: buildCartSummaryPayload(summary)})
}

func (h *CartHandlers) clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	if err := h.carts.Clear(ctx, identity.UID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type cartQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type cartResponse struct {
	Cart cartSummaryPayload `json:"cart"`
}

type cartSummaryPayload struct {
	Items       []cartItemPayload `json:"items"`
	TotalItems  int               `json:"total_items"`
	Subtotal    int64             `json:"subtotal"`
	ShippingFee int64             `json:"shipping_fee"`
	AdminFee    int64             `json:"admin_fee"`
	Total       int64             `json:"total"`
	UpdatedAt   string            `json:"updated_at,omitempty"`
}

type cartItemPayload struct {
	ProductID   string   `json:"product_id"`
	ProductName string   `json:"product_name,omitempty"`
	Quantity    int      `json:"quantity"`
	UnitPrice   int64    `json:"unit_price"`
	LineTotal   int64    `json:"line_total"`
	Images      []string `json:"images,omitempty"`
	AddedAt     string   `json:"added_at,omitempty"`
}

func buildCartSummaryPayload(summary services.CartSummary) cartSummaryPayload {
	payload := cartSummaryPayload{
		Items:       make([]cartItemPayload, 0, len(summary.Items)),
		TotalItems:  summary.TotalItems,
		Subtotal:    summary.Subtotal,
		ShippingFee: summary.ShippingFee,
		AdminFee:    summary.AdminFee,
		Total:       summary.Total,
	}
	if !summary.UpdatedAt.IsZero() {
		payload.UpdatedAt = summary.UpdatedAt.UTC().Format(timeFormat)
	}
	for _, item := range summary.Items {
		payload.Items = append(payload.Items, buildCartItemPayload(item))
	}
	return payload
}

func buildCartItemPayload(item domain.CartItem) cartItemPayload {
	payload := cartItemPayload{
		ProductID:   item.ProductID,
		ProductName: strings.TrimSpace(item.Snapshot.Name),
		Quantity:    item.Quantity,
		UnitPrice:   item.UnitPrice,
		LineTotal:   item.UnitPrice * int64(item.Quantity),
	}
	for _, image := range item.Snapshot.Images {
		if image.URL != "" {
			payload.Images = append(payload.Images, image.URL)
		}
	}
	if !item.AddedAt.IsZero() {
		payload.AddedAt = item.AddedAt.UTC().Format(timeFormat)
	}
	return payload
}
