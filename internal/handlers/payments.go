package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/pawmart/api/internal/domain"
	"github.com/pawmart/api/internal/platform/httpx"
	"github.com/pawmart/api/internal/services"
)

// PaymentHandlers exposes the authenticated payment endpoints.
type PaymentHandlers struct {
	payments services.PaymentService
}

// NewPaymentHandlers constructs handlers backed by the payment service.
func NewPaymentHandlers(payments services.PaymentService) *PaymentHandlers {
	return &PaymentHandlers{payments: payments}
}

// Routes wires the /payments endpoints onto the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{paymentID}", h.get)
	r.Patch("/{paymentID}/cancel", h.cancel)
}

func (h *PaymentHandlers) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	var req createPaymentRequest
	if err := decodeBody(r, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	payment, err := h.payments.CreatePayment(ctx, services.CreatePaymentCommand{
		UserID:        identity.UID,
		ReferenceType: domain.PaymentReferenceType(strings.ToLower(strings.TrimSpace(req.ReferenceType))),
		ReferenceID:   strings.TrimSpace(req.ReferenceID),
		Method:        strings.TrimSpace(req.Method),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, paymentResponse{Payment: buildPaymentPayload(payment)})
}

func (h *PaymentHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()
	payments, err := h.payments.ListPayments(ctx, services.ListPaymentsCommand{
		UserID:        identity.UID,
		Status:        domain.PaymentStatus(strings.ToLower(strings.TrimSpace(query.Get("status")))),
		ReferenceType: domain.PaymentReferenceType(strings.ToLower(strings.TrimSpace(query.Get("reference_type")))),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := make([]paymentPayload, 0, len(payments))
	for _, payment := range payments {
		payload = append(payload, buildPaymentPayload(payment))
	}
	httpx.WriteJSON(w, http.StatusOK, paymentListResponse{Payments: payload})
}

func (h *PaymentHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	payment, err := h.payments.GetPayment(ctx, identity.UID, chi.URLParam(r, "paymentID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentResponse{Payment: buildPaymentPayload(payment)})
}

func (h *PaymentHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := callerIdentity(ctx, w)
	if !ok {
		return
	}

	payment, err := h.payments.CancelPayment(ctx, identity.UID, chi.URLParam(r, "paymentID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, paymentResponse{Payment: buildPaymentPayload(payment)})
}

type createPaymentRequest struct {
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
	Method        string `json:"method"`
}

type paymentResponse struct {
	Payment paymentPayload `json:"payment"`
}

type paymentListResponse struct {
	Payments []paymentPayload `json:"payments"`
}

type paymentPayload struct {
	ID            string `json:"id"`
	ReferenceType string `json:"reference_type"`
	ReferenceID   string `json:"reference_id"`
	Amount        int64  `json:"amount"`
	AdminFee      int64  `json:"admin_fee"`
	Total         int64  `json:"total"`
	Method        string `json:"method"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

func buildPaymentPayload(payment services.Payment) paymentPayload {
	payload := paymentPayload{
		ID:            payment.ID,
		ReferenceType: string(payment.ReferenceType),
		ReferenceID:   payment.ReferenceID,
		Amount:        payment.Amount,
		AdminFee:      payment.Fee,
		Total:         payment.Total,
		Method:        payment.Method,
		TransactionID: payment.TransactionID,
		Status:        string(payment.Status),
	}
	if !payment.CreatedAt.IsZero() {
		payload.CreatedAt = payment.CreatedAt.UTC().Format(timeFormat)
	}
	if !payment.UpdatedAt.IsZero() {
		payload.UpdatedAt = payment.UpdatedAt.UTC().Format(timeFormat)
	}
	return payload
}
