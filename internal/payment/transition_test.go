package payment

import (
	"testing"

	"kgstyle/shop-service/internal/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyIntent(t *testing.T) {
	tests := []struct {
		name     string
		current  order.Status
		intent   Intent
		wantNext order.Status
		wantPaid bool
		wantErr  error
	}{
		{name: "confirm pending", current: order.StatusPending, intent: IntentConfirm, wantNext: order.StatusConfirmed, wantPaid: true},
		{name: "reject pending", current: order.StatusPending, intent: IntentReject, wantNext: order.StatusCancelled, wantPaid: false},
		{name: "confirm confirmed", current: order.StatusConfirmed, intent: IntentConfirm, wantErr: ErrInvalidTransition},
		{name: "reject confirmed", current: order.StatusConfirmed, intent: IntentReject, wantErr: ErrInvalidTransition},
		{name: "confirm cancelled", current: order.StatusCancelled, intent: IntentConfirm, wantErr: ErrInvalidTransition},
		{name: "confirm shipped", current: order.StatusShipped, intent: IntentConfirm, wantErr: ErrInvalidTransition},
		{name: "reject delivered", current: order.StatusDelivered, intent: IntentReject, wantErr: ErrInvalidTransition},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, paid, err := applyIntent(tc.current, tc.intent)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantNext, next)
			assert.Equal(t, tc.wantPaid, paid)
		})
	}
}

func TestApplyIntentUnknownIntent(t *testing.T) {
	_, _, err := applyIntent(order.StatusPending, Intent("refund"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidTransition)
}

// Every reachable (status, paid) pair the transition table can produce must
// keep paid=true implying a confirmed order and cancelled implying unpaid.
func TestTransitionInvariants(t *testing.T) {
	for _, intent := range []Intent{IntentConfirm, IntentReject} {
		next, paid, err := applyIntent(order.StatusPending, intent)
		require.NoError(t, err)
		if paid {
			assert.Equal(t, order.StatusConfirmed, next)
		}
		if next == order.StatusCancelled {
			assert.False(t, paid)
		}
	}
}

func TestNewCallbackEventSynthesizesStableID(t *testing.T) {
	a := NewCallbackEvent("", IntentConfirm, 42)
	b := NewCallbackEvent("", IntentConfirm, 42)
	c := NewCallbackEvent("", IntentReject, 42)

	assert.Equal(t, a.EventID, b.EventID)
	assert.NotEqual(t, a.EventID, c.EventID)

	d := NewCallbackEvent("tg-123", IntentConfirm, 42)
	assert.Equal(t, "tg-123", d.EventID)
}
