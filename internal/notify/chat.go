package notify

import (
	"context"
	"fmt"

	"kgstyle/shop-service/pkg/contracts"
)

// ChatChannel posts a settlement summary into the admin chat, confirming
// that the customer-facing notifications went out for the order.
type ChatChannel struct {
	sender      func(ctx context.Context, chatID int64, text string) error
	adminChatID int64
}

func NewChatChannel(send func(ctx context.Context, chatID int64, text string) error, adminChatID int64) *ChatChannel {
	return &ChatChannel{sender: send, adminChatID: adminChatID}
}

func (c *ChatChannel) Name() string { return "chat" }

func (c *ChatChannel) Send(ctx context.Context, msg Message) error {
	text := fmt.Sprintf("Order #%d (%s): payment confirmed, customer notified.", msg.Order.ID, msg.Order.ReferenceCode)
	if msg.Outcome == contracts.SettlementRejected {
		text = fmt.Sprintf("Order #%d (%s): payment rejected, order cancelled.", msg.Order.ID, msg.Order.ReferenceCode)
	}
	return c.sender(ctx, c.adminChatID, text)
}
