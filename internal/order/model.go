package order

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Order is the bounded slice of the storefront order this service owns.
// Amount is in minor currency units.
type Order struct {
	ID            int64     `json:"id"`
	ReferenceCode string    `json:"reference_code,omitempty"`
	Status        Status    `json:"status"`
	Paid          bool      `json:"paid"`
	Amount        int64     `json:"amount"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	City          string    `json:"city"`
	Address       string    `json:"address"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (o *Order) CustomerName() string {
	return strings.TrimSpace(o.FirstName + " " + o.LastName)
}
