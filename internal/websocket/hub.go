package websocket

import (
	"context"
	"encoding/json"
	"strconv"
)

// StatusUpdate is pushed to every client watching an order whenever its
// payment settles.
type StatusUpdate struct {
	OrderID int64  `json:"order_id"`
	Status  string `json:"status"`
	Paid    bool   `json:"paid"`
}

type Client struct {
	hub     *Hub
	conn    *Conn
	send    chan []byte
	orderID int64
}

// Hub groups clients by the order they watch and fans status updates out to
// the matching group.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan StatusUpdate
	clients    map[int64]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan StatusUpdate),
		clients:    make(map[int64]map[*Client]bool),
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case c := <-h.register:
			set, ok := h.clients[c.orderID]
			if !ok {
				set = make(map[*Client]bool)
				h.clients[c.orderID] = set
			}
			set[c] = true
		case c := <-h.unregister:
			if set, ok := h.clients[c.orderID]; ok {
				if _, exists := set[c]; exists {
					delete(set, c)
					close(c.send)
				}
				if len(set) == 0 {
					delete(h.clients, c.orderID)
				}
			}
		case upd := <-h.broadcast:
			msg, _ := json.Marshal(upd)
			if set, ok := h.clients[upd.OrderID]; ok {
				for c := range set {
					select {
					case c.send <- msg:
					default:
						delete(set, c)
						close(c.send)
					}
				}
			}
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			return
		}
	}
}

func (h *Hub) Broadcast(u StatusUpdate) {
	go func() { h.broadcast <- u }()
}

func parseOrderID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
