package payment

import "fmt"

type Intent string

const (
	IntentConfirm Intent = "confirm"
	IntentReject  Intent = "reject"
)

type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeRejected  Outcome = "rejected"
	// OutcomeDuplicate means this workflow already settled the order or has
	// seen this delivery; the event was a no-op by design, not an error.
	OutcomeDuplicate Outcome = "duplicate"
)

// CallbackEvent is one externally delivered button press. It lives for the
// duration of a single delivery and is never persisted beyond the inbox row
// keyed by EventID.
type CallbackEvent struct {
	EventID string
	Intent  Intent
	OrderID int64
}

// NewCallbackEvent builds the event for one delivery. When the source gave
// no delivery identifier the event id is synthesized from the intent and
// order; that suppresses fewer duplicates than a real delivery id but can
// never let a replay through.
func NewCallbackEvent(deliveryID string, intent Intent, orderID int64) CallbackEvent {
	if deliveryID == "" {
		deliveryID = fmt.Sprintf("synth:%s:%d", intent, orderID)
	}
	return CallbackEvent{EventID: deliveryID, Intent: intent, OrderID: orderID}
}

type Result struct {
	Outcome Outcome
	OrderID int64
}
