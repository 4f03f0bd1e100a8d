package contracts

import "time"

const (
	EventOrderCreated = "orders.created"
	EventOrderSettled = "payments.settled"
)

type OrderCreatedEvent struct {
	EventID       string    `json:"event_id"`
	OrderID       int64     `json:"order_id"`
	ReferenceCode string    `json:"reference_code"`
	Amount        int64     `json:"amount"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	CustomerPhone string    `json:"customer_phone"`
	City          string    `json:"city"`
	Address       string    `json:"address"`
	CreatedAt     time.Time `json:"created_at"`
}

type SettlementOutcome string

const (
	SettlementConfirmed SettlementOutcome = "confirmed"
	SettlementRejected  SettlementOutcome = "rejected"
)

type OrderSettledEvent struct {
	EventID   string            `json:"event_id"`
	OrderID   int64             `json:"order_id"`
	Outcome   SettlementOutcome `json:"outcome"`
	Amount    int64             `json:"amount"`
	SettledAt time.Time         `json:"settled_at"`
}
