package payment

import (
	"errors"
	"fmt"

	"kgstyle/shop-service/internal/order"
)

// ErrInvalidTransition means the order left the pending state through some
// path other than this workflow (fulfillment, a manual admin edit) before
// the event arrived. The event is reported and dropped, never retried.
var ErrInvalidTransition = errors.New("order is not awaiting payment confirmation")

// applyIntent is the whole transition table: pending is the only state a
// settlement event may act on, confirm is the only transition that sets
// paid, and a paid order can never be produced by a reject.
func applyIntent(current order.Status, intent Intent) (next order.Status, paid bool, err error) {
	if current != order.StatusPending {
		return "", false, fmt.Errorf("%w: status %q", ErrInvalidTransition, current)
	}
	switch intent {
	case IntentConfirm:
		return order.StatusConfirmed, true, nil
	case IntentReject:
		return order.StatusCancelled, false, nil
	default:
		return "", false, fmt.Errorf("unknown intent %q", intent)
	}
}
