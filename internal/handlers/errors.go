package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/pawmart/api/internal/platform/auth"
	"github.com/pawmart/api/internal/platform/httpx"
	"github.com/pawmart/api/internal/services"
)

const (
	maxBodySize = 64 * 1024

	// timeFormat is the wire format for timestamps in responses.
	timeFormat = "2006-01-02T15:04:05Z07:00"
)

var errBodyTooLarge = errors.New("request body too large")

// serviceErrorStatus maps every service sentinel onto its HTTP code.
var serviceErrorStatus = []struct {
	sentinel error
	code     string
	status   int
}{
	{services.ErrCartInvalidInput, "invalid_request", http.StatusBadRequest},
	{services.ErrCartItemNotFound, "cart_item_not_found", http.StatusNotFound},
	{services.ErrCartProductNotFound, "product_not_found", http.StatusNotFound},
	{services.ErrCartConflict, "cart_conflict", http.StatusConflict},

	{services.ErrOrderInvalidInput, "invalid_request", http.StatusBadRequest},
	{services.ErrOrderNotFound, "order_not_found", http.StatusNotFound},
	{services.ErrOrderUnauthorized, "forbidden", http.StatusForbidden},
	{services.ErrOrderInvalidState, "order_invalid_state", http.StatusConflict},
	{services.ErrOrderConflict, "order_conflict", http.StatusConflict},

	{services.ErrBookingInvalidInput, "invalid_request", http.StatusBadRequest},
	{services.ErrBookingNotFound, "booking_not_found", http.StatusNotFound},
	{services.ErrBookingDoctorNotFound, "doctor_not_found", http.StatusNotFound},
	{services.ErrBookingUnauthorized, "forbidden", http.StatusForbidden},
	{services.ErrBookingInvalidState, "booking_invalid_state", http.StatusConflict},
	{services.ErrBookingConflict, "booking_conflict", http.StatusConflict},
	{services.ErrBookingDoctorUnavailable, "doctor_unavailable", http.StatusConflict},

	{services.ErrPaymentInvalidInput, "invalid_request", http.StatusBadRequest},
	{services.ErrPaymentNotFound, "payment_not_found", http.StatusNotFound},
	{services.ErrPaymentReferenceNotFound, "reference_not_found", http.StatusNotFound},
	{services.ErrPaymentUnauthorized, "forbidden", http.StatusForbidden},
	{services.ErrPaymentInvalidState, "payment_invalid_state", http.StatusConflict},
	{services.ErrPaymentConflict, "payment_conflict", http.StatusConflict},

	{services.ErrChatInvalidInput, "invalid_request", http.StatusBadRequest},
	{services.ErrChatNotFound, "chat_not_found", http.StatusNotFound},
	{services.ErrChatBookingNotFound, "booking_not_found", http.StatusNotFound},
	{services.ErrChatUnauthorized, "forbidden", http.StatusForbidden},
	{services.ErrChatInactive, "chat_inactive", http.StatusConflict},
	{services.ErrChatConflict, "chat_conflict", http.StatusConflict},

	{services.ErrDoctorInvalidInput, "invalid_request", http.StatusBadRequest},
	{services.ErrDoctorNotFound, "doctor_not_found", http.StatusNotFound},
}

// writeServiceError translates a service failure into the JSON error
// envelope. Unrecognised errors surface as a 500 without leaking the
// underlying message.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	for _, mapping := range serviceErrorStatus {
		if errors.Is(err, mapping.sentinel) {
			httpx.WriteError(ctx, w, httpx.NewError(mapping.code, err.Error(), mapping.status))
			return
		}
	}
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "something went wrong", http.StatusInternalServerError))
}

// callerIdentity pulls the gateway-provided identity off the request
// context. The auth middleware guarantees it for mounted groups.
func callerIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || identity.UID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

// decodeBody reads and unmarshals a bounded JSON request body.
func decodeBody(r *http.Request, target any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if int64(len(body)) > maxBodySize {
		return errBodyTooLarge
	}
	if len(body) == 0 {
		return errors.New("request body is required")
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
}
