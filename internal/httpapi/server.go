package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"kgstyle/shop-service/internal/order"
	"kgstyle/shop-service/internal/payment"
)

// OrderService is the order-store surface the API needs; the concrete
// implementation lives in internal/order.
type OrderService interface {
	Create(ctx context.Context, in order.CreateInput) (*order.Order, error)
	Get(ctx context.Context, orderID int64) (*order.Order, error)
	List(ctx context.Context) ([]order.Order, error)
	FindByReference(ctx context.Context, code string) (*order.Order, error)
	EnsureReference(ctx context.Context, orderID int64) (string, error)
}

// Settler applies one settlement event; internal/payment provides it.
type Settler interface {
	Settle(ctx context.Context, evt payment.CallbackEvent) (payment.Result, error)
}

// BotAPI is the slice of the Telegram client the webhook handler calls to
// close the loop on a button tap. Both calls are best-effort.
type BotAPI interface {
	AnswerCallback(ctx context.Context, callbackQueryID, text string, showAlert bool) error
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
}

type Server struct {
	orders  OrderService
	settler Settler
	bot     BotAPI
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewServer wires the routes. bot may be nil when the Telegram side is not
// configured; the webhook endpoint still accepts and settles callbacks.
func NewServer(orders OrderService, settler Settler, bot BotAPI, logger *slog.Logger) *Server {
	s := &Server{
		orders:  orders,
		settler: settler,
		bot:     bot,
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /orders", s.createOrder)
	s.mux.HandleFunc("GET /orders", s.listOrders)
	s.mux.HandleFunc("GET /orders/{orderID}", s.getOrder)
	s.mux.HandleFunc("POST /orders/{orderID}/reference", s.ensureReference)
	s.mux.HandleFunc("GET /orders/by-reference/{code}", s.getOrderByReference)
	s.mux.HandleFunc("POST /telegram/webhook", s.telegramWebhook)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// HandleFunc exposes the underlying mux so optional routes (the websocket
// feed) can be attached during wiring.
func (s *Server) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var in order.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	o, err := s.orders.Create(r.Context(), in)
	if err != nil {
		if errors.Is(err, order.ErrReferenceExhausted) {
			s.logger.Error("reference code space exhausted")
			writeError(w, http.StatusServiceUnavailable, "could not allocate order reference")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.orders.List(r.Context())
	if err != nil {
		s.logger.Error("list orders", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := s.orders.Get(r.Context(), orderID)
	if err != nil {
		s.respondOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) ensureReference(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDFromPath(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	code, err := s.orders.EnsureReference(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, order.ErrReferenceExhausted) {
			writeError(w, http.StatusServiceUnavailable, "could not allocate order reference")
			return
		}
		s.respondOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reference_code": code})
}

func (s *Server) getOrderByReference(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	o, err := s.orders.FindByReference(r.Context(), code)
	if err != nil {
		s.respondOrderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) respondOrderError(w http.ResponseWriter, err error) {
	if errors.Is(err, order.ErrOrderNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	s.logger.Error("order lookup", "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func orderIDFromPath(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("orderID"), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
