package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kgstyle/shop-service/internal/config"
	"kgstyle/shop-service/internal/httpapi"
	"kgstyle/shop-service/internal/notify"
	"kgstyle/shop-service/internal/order"
	"kgstyle/shop-service/internal/payment"
	"kgstyle/shop-service/internal/storage"
	"kgstyle/shop-service/internal/telegram"
	"kgstyle/shop-service/internal/websocket"
	"kgstyle/shop-service/pkg/contracts"
	"kgstyle/shop-service/pkg/messaging"

	"github.com/rabbitmq/amqp091-go"
)

// alertRetryPause spaces out redeliveries while Telegram is unreachable so
// the alert queue does not spin hot.
const alertRetryPause = 2 * time.Second

type App struct {
	cfg        config.Config
	logger     *slog.Logger
	retryPause time.Duration
	store      *storage.Store
	orderSvc   *order.Service
	settler    *payment.Settler
	bot        *telegram.Client
	dispatcher *notify.Dispatcher
	wsHub      *websocket.Hub
	publisher  messaging.Publisher
	outbox     *messaging.OutboxDispatcher
	alerts     *messaging.Consumer
	jobs       *messaging.Consumer
	httpSrv    *http.Server
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	store, err := storage.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	orderSvc := order.NewService(store.Pool(), order.NewRefCodeGenerator(), logger)
	settler := payment.NewSettler(store.Pool(), logger)

	var bot *telegram.Client
	if cfg.Telegram.Enabled() {
		bot = telegram.NewClient(telegram.ClientConfig{
			Token:    cfg.Telegram.Token,
			BaseURL:  cfg.Telegram.APIBaseURL,
			Timeout:  cfg.Telegram.Timeout(),
			SendRate: cfg.Telegram.MessagesPerSecond,
		}, logger)
	} else {
		logger.Warn("telegram bot not configured, admin alerts disabled")
	}

	publisher, err := messaging.NewRabbitPublisher(cfg.Rabbit.URL, cfg.Rabbit.Exchange)
	if err != nil {
		store.Close()
		return nil, err
	}

	alerts, err := messaging.NewRabbitConsumer(cfg.Rabbit.URL, cfg.Rabbit.Exchange, cfg.Rabbit.AlertQueue, contracts.EventOrderCreated, logger)
	if err != nil {
		store.Close()
		publisher.Close()
		return nil, err
	}

	jobs, err := messaging.NewRabbitConsumer(cfg.Rabbit.URL, cfg.Rabbit.Exchange, cfg.Rabbit.NotifyQueue, contracts.EventOrderSettled, logger)
	if err != nil {
		store.Close()
		publisher.Close()
		alerts.Close()
		return nil, err
	}

	wsHub := websocket.NewHub()

	api := httpapi.NewServer(orderSvc, settler, botAPI(bot), logger)
	wsHandler := websocket.NewHandler(wsHub, orderSvc, logger)
	api.HandleFunc("GET /orders/{orderID}/ws", wsHandler.ServeWS)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	outbox := messaging.NewOutboxDispatcher(store.Pool(), publisher, cfg.Outbox.Interval(), cfg.Outbox.BatchSize, logger)

	a := &App{
		cfg:        cfg,
		logger:     logger,
		retryPause: alertRetryPause,
		store:      store,
		orderSvc:   orderSvc,
		settler:    settler,
		bot:        bot,
		wsHub:      wsHub,
		publisher:  publisher,
		outbox:     outbox,
		alerts:     alerts,
		jobs:       jobs,
		httpSrv:    httpSrv,
	}
	a.dispatcher = notify.NewDispatcher(a.buildChannels(), 15*time.Second, logger)

	return a, nil
}

// botAPI keeps the nil-ness of an unconfigured bot visible to the API layer
// instead of smuggling a typed nil behind the interface.
func botAPI(bot *telegram.Client) httpapi.BotAPI {
	if bot == nil {
		return nil
	}
	return bot
}

func (a *App) buildChannels() []notify.Channel {
	var channels []notify.Channel

	if a.cfg.Email.Enabled() {
		channels = append(channels, notify.NewEmailChannel(notify.EmailConfig{
			Host:     a.cfg.Email.Host,
			Port:     a.cfg.Email.Port,
			From:     a.cfg.Email.From,
			Username: a.cfg.Email.Username,
			Password: a.cfg.Email.Password,
		}))
	} else {
		a.logger.Info("email channel not configured, skipping")
	}

	if a.bot != nil {
		channels = append(channels, notify.NewChatChannel(func(ctx context.Context, chatID int64, text string) error {
			return a.bot.SendMessage(ctx, chatID, text, nil)
		}, a.cfg.Telegram.AdminChatID))
	}

	if a.cfg.SMS.Enabled() {
		channels = append(channels, notify.NewSMSChannel(notify.SMSConfig{
			URL:    a.cfg.SMS.URL,
			APIKey: a.cfg.SMS.APIKey,
			Sender: a.cfg.SMS.Sender,
		}))
	} else {
		a.logger.Info("sms channel not configured, skipping")
	}

	return channels
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 3)

	a.outbox.Start(ctx)
	go a.wsHub.Run(ctx)

	go func() {
		errCh <- a.alerts.Start(ctx, a.handleOrderCreated)
	}()
	go func() {
		errCh <- a.jobs.Start(ctx, a.handleOrderSettled)
	}()

	go func() {
		a.logger.Info("shop service listening", "addr", a.cfg.Server.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (a *App) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout())
	defer cancel()
	_ = a.httpSrv.Shutdown(shutdownCtx)
	a.alerts.Close()
	a.jobs.Close()
	a.publisher.Close()
	a.store.Close()
}

// handleOrderCreated turns a committed order into the admin chat alert with
// the confirm/reject buttons.
func (a *App) handleOrderCreated(ctx context.Context, msg amqp091.Delivery) {
	var evt contracts.OrderCreatedEvent
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		a.logger.Error("invalid order created event", "err", err)
		_ = msg.Nack(false, false)
		return
	}

	if a.bot == nil {
		a.logger.Warn("dropping admin alert, telegram not configured", "order_id", evt.OrderID)
		_ = msg.Ack(false)
		return
	}

	err := a.bot.SendMessage(ctx, a.cfg.Telegram.AdminChatID,
		telegram.OrderAlertText(evt), telegram.PaymentKeyboard(evt.OrderID))
	if err != nil {
		if errors.Is(err, telegram.ErrUnavailable) {
			a.logger.Warn("telegram unreachable, requeueing alert", "order_id", evt.OrderID, "err", err)
			select {
			case <-time.After(a.retryPause):
			case <-ctx.Done():
			}
			_ = msg.Nack(false, true)
			return
		}
		a.logger.Error("send admin alert failed", "order_id", evt.OrderID, "err", err)
		_ = msg.Nack(false, false)
		return
	}

	_ = msg.Ack(false)
}

// handleOrderSettled fans a settlement out to the notification channels and
// the live order feed. The settler already guarantees at most one settled
// event per order, so dispatch here needs no dedup of its own.
func (a *App) handleOrderSettled(ctx context.Context, msg amqp091.Delivery) {
	var evt contracts.OrderSettledEvent
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		a.logger.Error("invalid order settled event", "err", err)
		_ = msg.Nack(false, false)
		return
	}

	o, err := a.orderSvc.Get(ctx, evt.OrderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			a.logger.Error("settled event for unknown order", "order_id", evt.OrderID)
			_ = msg.Nack(false, false)
			return
		}
		a.logger.Error("load settled order failed", "order_id", evt.OrderID, "err", err)
		_ = msg.Nack(false, true)
		return
	}

	a.dispatcher.Dispatch(ctx, notify.Message{Order: *o, Outcome: evt.Outcome})
	a.wsHub.Broadcast(websocket.StatusUpdate{
		OrderID: o.ID,
		Status:  string(o.Status),
		Paid:    o.Paid,
	})

	_ = msg.Ack(false)
}

func Run() error {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer app.Close(ctx)

	return app.Run(ctx)
}
