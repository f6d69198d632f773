package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Identifier prefixes per aggregate.
const (
	orderIDPrefix   = "ord_"
	bookingIDPrefix = "bkg_"
	paymentIDPrefix = "pay_"
	chatIDPrefix    = "chat_"
	messageIDPrefix = "msg_"

	transactionIDPrefix = "TRX"
	bookingNumberPrefix = "BK"

	orderNumberDateLayout = "060102"
	orderNumberSeqDigits  = 3
)

// OrderNumberPrefix returns the date component shared by all order
// numbers issued on the given day.
func OrderNumberPrefix(day time.Time) string {
	return day.UTC().Format(orderNumberDateLayout)
}

// NextOrderNumber derives the follow-up to the highest number already
// claimed under the prefix. The sequence starts at 1 each day and is
// zero padded to three digits; it keeps counting past 999 without
// wrapping.
func NextOrderNumber(prefix, latest string) (string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "", fmt.Errorf("order number prefix is required")
	}

	seq := 1
	if latest = strings.TrimSpace(latest); latest != "" {
		if !strings.HasPrefix(latest, prefix) {
			return "", fmt.Errorf("latest order number %q does not match prefix %q", latest, prefix)
		}
		previous, err := strconv.Atoi(latest[len(prefix):])
		if err != nil {
			return "", fmt.Errorf("latest order number %q has malformed sequence: %w", latest, err)
		}
		seq = previous + 1
	}

	return fmt.Sprintf("%s%0*d", prefix, orderNumberSeqDigits, seq), nil
}

// NewTransactionID issues a payment transaction id. The ULID suffix
// carries a millisecond timestamp plus random entropy, so ids are
// unique and roughly sortable by creation time.
func NewTransactionID() string {
	return transactionIDPrefix + ulid.Make().String()
}

// NewBookingNumber issues a booking reference in the same style.
func NewBookingNumber() string {
	return bookingNumberPrefix + ulid.Make().String()
}

func newEntityID(prefix string) string {
	return prefix + ulid.Make().String()
}
