package notify

import (
	"context"
	"log/slog"
	"time"

	"kgstyle/shop-service/internal/order"
	"kgstyle/shop-service/pkg/contracts"
)

// Message is one settled order headed for every configured channel.
type Message struct {
	Order   order.Order
	Outcome contracts.SettlementOutcome
}

type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Dispatcher fans a settled order out to its channels in order. A channel
// failure is logged and must never suppress the remaining channels; the
// caller is already past the idempotency gate, so Dispatch runs at most
// once per settlement and does no deduplication of its own.
type Dispatcher struct {
	channels    []Channel
	sendTimeout time.Duration
	logger      *slog.Logger
}

func NewDispatcher(channels []Channel, sendTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	if sendTimeout <= 0 {
		sendTimeout = 15 * time.Second
	}
	return &Dispatcher{channels: channels, sendTimeout: sendTimeout, logger: logger}
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) {
	for _, ch := range d.channels {
		sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		err := ch.Send(sendCtx, msg)
		cancel()

		if err != nil {
			d.logger.Warn("notification channel failed",
				"channel", ch.Name(), "order_id", msg.Order.ID, "outcome", msg.Outcome, "err", err)
			continue
		}
		d.logger.Info("notification sent",
			"channel", ch.Name(), "order_id", msg.Order.ID, "outcome", msg.Outcome)
	}
}
