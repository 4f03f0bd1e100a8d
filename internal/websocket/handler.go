package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"kgstyle/shop-service/internal/order"

	gw "github.com/gorilla/websocket"
)

type Conn = gw.Conn

var upgrader = gw.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// OrderLoader is the read access the handler needs to send the initial
// snapshot.
type OrderLoader interface {
	Get(ctx context.Context, orderID int64) (*order.Order, error)
}

type Handler struct {
	hub    *Hub
	orders OrderLoader
	logger *slog.Logger
}

func NewHandler(hub *Hub, orders OrderLoader, logger *slog.Logger) *Handler {
	return &Handler{hub: hub, orders: orders, logger: logger}
}

func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseOrderID(r.PathValue("orderID"))
	if err != nil {
		http.Error(w, "invalid order id", http.StatusBadRequest)
		return
	}

	o, err := h.orders.Get(r.Context(), orderID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, order.ErrOrderNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "order_id", orderID, "err", err)
		return
	}

	client := &Client{
		hub:     h.hub,
		conn:    conn,
		send:    make(chan []byte, 256),
		orderID: orderID,
	}

	client.hub.register <- client
	go client.writePump()
	go client.readPump()

	snapshot := StatusUpdate{OrderID: orderID, Status: string(o.Status), Paid: o.Paid}
	if b, err := json.Marshal(snapshot); err == nil {
		select {
		case client.send <- b:
		case <-time.After(time.Second):
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(gw.TextMessage, msg); err != nil {
			return
		}
	}
}
