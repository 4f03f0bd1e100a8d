package telegram

import (
	"fmt"
	"strings"

	"kgstyle/shop-service/internal/payment"
	"kgstyle/shop-service/pkg/contracts"
)

// OrderAlertText renders the admin chat alert for a freshly created order.
func OrderAlertText(evt contracts.OrderCreatedEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💰 NEW ORDER #%d\n", evt.OrderID)
	fmt.Fprintf(&b, "Reference: %s\n", evt.ReferenceCode)
	fmt.Fprintf(&b, "Amount: %s\n", formatAmount(evt.Amount))
	b.WriteString("──────────────\n")
	fmt.Fprintf(&b, "Customer: %s\n", evt.CustomerName)
	if evt.CustomerEmail != "" {
		fmt.Fprintf(&b, "Email: %s\n", evt.CustomerEmail)
	}
	if evt.CustomerPhone != "" {
		fmt.Fprintf(&b, "Phone: %s\n", evt.CustomerPhone)
	}
	if evt.City != "" || evt.Address != "" {
		fmt.Fprintf(&b, "Delivery: %s, %s\n", evt.City, evt.Address)
	}
	fmt.Fprintf(&b, "Placed: %s", evt.CreatedAt.Format("02.01.2006 15:04"))
	return b.String()
}

// SettledText is what the alert message becomes once the order is settled
// and its buttons are gone.
func SettledText(orderID int64, outcome payment.Outcome) string {
	switch outcome {
	case payment.OutcomeConfirmed:
		return fmt.Sprintf("✅ Payment for order #%d confirmed. The customer has been notified.", orderID)
	case payment.OutcomeRejected:
		return fmt.Sprintf("❌ Payment for order #%d rejected.", orderID)
	default:
		return fmt.Sprintf("Order #%d already processed.", orderID)
	}
}

func formatAmount(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}
