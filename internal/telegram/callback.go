package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"kgstyle/shop-service/internal/payment"
)

const (
	callbackConfirmPrefix = "confirm_payment_"
	callbackRejectPrefix  = "reject_payment_"
)

var (
	// ErrUnrecognizedIntent marks callback data this service has no handler
	// for, e.g. a button added by a newer bot version. Acknowledged and
	// ignored.
	ErrUnrecognizedIntent = errors.New("unrecognized callback intent")
	// ErrMalformedPayload marks callback data with a recognized prefix but
	// an unusable order id.
	ErrMalformedPayload = errors.New("malformed callback payload")
)

// ParseCallback maps a button's callback data onto a settlement intent and
// the order it targets.
func ParseCallback(data string) (payment.Intent, int64, error) {
	var (
		intent payment.Intent
		rest   string
	)
	switch {
	case strings.HasPrefix(data, callbackConfirmPrefix):
		intent = payment.IntentConfirm
		rest = strings.TrimPrefix(data, callbackConfirmPrefix)
	case strings.HasPrefix(data, callbackRejectPrefix):
		intent = payment.IntentReject
		rest = strings.TrimPrefix(data, callbackRejectPrefix)
	default:
		return "", 0, fmt.Errorf("%w: %q", ErrUnrecognizedIntent, data)
	}

	// ParseInt tolerates a leading sign; the payload grammar does not.
	if !isDigits(rest) {
		return "", 0, fmt.Errorf("%w: order id %q", ErrMalformedPayload, rest)
	}
	orderID, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || orderID <= 0 {
		return "", 0, fmt.Errorf("%w: order id %q", ErrMalformedPayload, rest)
	}

	return intent, orderID, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// PaymentKeyboard builds the confirm/reject buttons attached to an admin
// payment alert; ParseCallback understands exactly these payloads.
func PaymentKeyboard(orderID int64) *InlineKeyboardMarkup {
	return &InlineKeyboardMarkup{
		InlineKeyboard: [][]InlineKeyboardButton{{
			{Text: "✅ Confirm", CallbackData: fmt.Sprintf("%s%d", callbackConfirmPrefix, orderID)},
			{Text: "❌ Reject", CallbackData: fmt.Sprintf("%s%d", callbackRejectPrefix, orderID)},
		}},
	}
}
