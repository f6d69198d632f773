package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/pawmart/api/internal/domain"
	"github.com/pawmart/api/internal/platform/auth"
	"github.com/pawmart/api/internal/services"
)

func TestCartHandlersGetSummarySuccess(t *testing.T) {
	now := time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

	service := &stubCartService{
		getSummaryFunc: func(ctx context.Context, userID string) (services.CartSummary, error) {
			if userID != "user-7" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return services.CartSummary{
				Items: []services.CartItem{
					{
						ProductID: "prd_1",
						Quantity:  2,
						UnitPrice: 45000,
						Snapshot: domain.ProductSnapshot{
							Name: "Royal Canin Kitten 2kg",
							Images: []domain.ProductImage{
								{URL: "https://img.example/kitten.jpg", IsMain: true},
							},
						},
						AddedAt: now,
					},
				},
				TotalItems:  2,
				Subtotal:    90000,
				ShippingFee: 10000,
				AdminFee:    10000,
				Total:       110000,
				UpdatedAt:   now,
			}, nil
		},
	}

	rr := serveCart(t, service, http.MethodGet, "/cart", "", "user-7")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Cart.Total != 110000 {
		t.Fatalf("expected total 110000, got %d", resp.Cart.Total)
	}
	if len(resp.Cart.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(resp.Cart.Items))
	}
	item := resp.Cart.Items[0]
	if item.ProductName != "Royal Canin Kitten 2kg" {
		t.Fatalf("unexpected product name %q", item.ProductName)
	}
	if item.LineTotal != 90000 {
		t.Fatalf("expected line total 90000, got %d", item.LineTotal)
	}
	if len(item.Images) != 1 || item.Images[0] != "https://img.example/kitten.jpg" {
		t.Fatalf("unexpected images %v", item.Images)
	}
}

func TestCartHandlersGetSummaryUnauthenticated(t *testing.T) {
	rr := serveCart(t, &stubCartService{}, http.MethodGet, "/cart", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestCartHandlersAddItemCreated(t *testing.T) {
	var captured services.AddCartItemCommand
	service := &stubCartService{
		addItemFunc: func(ctx context.Context, cmd services.AddCartItemCommand) (services.CartSummary, error) {
			captured = cmd
			return services.CartSummary{TotalItems: cmd.Quantity}, nil
		},
	}

	body := `{"product_id":"prd_1","quantity":3}`
	rr := serveCart(t, service, http.MethodPost, "/cart/items", body, "user-7")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-7" || captured.ProductID != "prd_1" || captured.Quantity != 3 {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestCartHandlersAddItemRejectsMalformedBody(t *testing.T) {
	rr := serveCart(t, &stubCartService{}, http.MethodPost, "/cart/items", `{"quantity":`, "user-7")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCartHandlersAddItemMapsUnknownProduct(t *testing.T) {
	service := &stubCartService{
		addItemFunc: func(ctx context.Context, cmd services.AddCartItemCommand) (services.CartSummary, error) {
			return services.CartSummary{}, services.ErrCartProductNotFound
		},
	}

	rr := serveCart(t, service, http.MethodPost, "/cart/items", `{"product_id":"prd_x","quantity":1}`, "user-7")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "product_not_found" {
		t.Fatalf("unexpected error code %q", code)
	}
}

func TestCartHandlersUpdateItemUsesPathProduct(t *testing.T) {
	var captured services.UpdateCartItemCommand
	service := &stubCartService{
		updateItemFunc: func(ctx context.Context, cmd services.UpdateCartItemCommand) (services.CartSummary, error) {
			captured = cmd
			return services.CartSummary{}, nil
		},
	}

	rr := serveCart(t, service, http.MethodPut, "/cart/items/prd_9", `{"quantity":5}`, "user-7")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ProductID != "prd_9" || captured.Quantity != 5 {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestCartHandlersRemoveItemMapsMissingLine(t *testing.T) {
	service := &stubCartService{
		removeItemFunc: func(ctx context.Context, userID, productID string) (services.CartSummary, error) {
			return services.CartSummary{}, services.ErrCartItemNotFound
		},
	}

	rr := serveCart(t, service, http.MethodDelete, "/cart/items/prd_9", "", "user-7")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestCartHandlersClearNoContent(t *testing.T) {
	cleared := false
	service := &stubCartService{
		clearFunc: func(ctx context.Context, userID string) error {
			cleared = true
			return nil
		},
	}

	rr := serveCart(t, service, http.MethodDelete, "/cart", "", "user-7")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !cleared {
		t.Fatalf("expected clear to be invoked")
	}
}

func serveCart(t *testing.T, service services.CartService, method, target, body, uid string) *httptest.ResponseRecorder {
	t.Helper()

	handler := NewCartHandlers(service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if uid != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Role: auth.RoleUser}))
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()

	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	return envelope.Error
}

type stubCartService struct {
	getSummaryFunc func(ctx context.Context, userID string) (services.CartSummary, error)
	addItemFunc    func(ctx context.Context, cmd services.AddCartItemCommand) (services.CartSummary, error)
	updateItemFunc func(ctx context.Context, cmd services.UpdateCartItemCommand) (services.CartSummary, error)
	removeItemFunc func(ctx context.Context, userID, productID string) (services.CartSummary, error)
	clearFunc      func(ctx context.Context, userID string) error
}

func (s *stubCartService) GetSummary(ctx context.Context, userID string) (services.CartSummary, error) {
	if s.getSummaryFunc != nil {
		return s.getSummaryFunc(ctx, userID)
	}
	return services.CartSummary{}, errors.New("not implemented")
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.CartSummary, error) {
	if s.addItemFunc != nil {
		return s.addItemFunc(ctx, cmd)
	}
	return services.CartSummary{}, errors.New("not implemented")
}

func (s *stubCartService) UpdateItem(ctx context.Context, cmd services.UpdateCartItemCommand) (services.CartSummary, error) {
	if s.updateItemFunc != nil {
		return s.updateItemFunc(ctx, cmd)
	}
	return services.CartSummary{}, errors.New("not implemented")
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID, productID string) (services.CartSummary, error) {
	if s.removeItemFunc != nil {
		return s.removeItemFunc(ctx, userID, productID)
	}
	return services.CartSummary{}, errors.New("not implemented")
}

func (s *stubCartService) Clear(ctx context.Context, userID string) error {
	if s.clearFunc != nil {
		return s.clearFunc(ctx, userID)
	}
	return errors.New("not implemented")
}
