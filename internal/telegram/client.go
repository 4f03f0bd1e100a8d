package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// ErrUnavailable means the Bot API could not be reached at all. Callers
// treat it as non-fatal: the admin loop degrades, order state does not.
var ErrUnavailable = errors.New("telegram api unavailable")

type ClientConfig struct {
	Token    string
	BaseURL  string // override for tests; defaults to api.telegram.org
	Timeout  time.Duration
	SendRate float64 // messages per second, Bot API allows ~30
}

// Client is a minimal Bot API client: exactly the three methods the
// confirmation workflow needs. All calls go through a shared rate limiter.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.telegram.org"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sendRate := cfg.SendRate
	if sendRate <= 0 {
		sendRate = 25
	}

	httpClient := resty.New().
		SetBaseURL(fmt.Sprintf("%s/bot%s", base, cfg.Token)).
		SetTimeout(timeout)

	return &Client{
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(sendRate), 5),
		logger:  logger,
	}
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

type sendMessageRequest struct {
	ChatID      int64                 `json:"chat_id"`
	Text        string                `json:"text"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

type answerCallbackRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

type editMessageRequest struct {
	ChatID      int64                 `json:"chat_id"`
	MessageID   int64                 `json:"message_id"`
	Text        string                `json:"text"`
	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) error {
	return c.call(ctx, "/sendMessage", sendMessageRequest{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: markup,
	})
}

// AnswerCallback closes the loop on a button tap so the admin's client
// stops showing a spinner.
func (c *Client) AnswerCallback(ctx context.Context, callbackQueryID, text string, showAlert bool) error {
	return c.call(ctx, "/answerCallbackQuery", answerCallbackRequest{
		CallbackQueryID: callbackQueryID,
		Text:            text,
		ShowAlert:       showAlert,
	})
}

// EditMessageText replaces an alert's text and drops its keyboard, so a
// settled order's buttons disappear from the admin chat.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	return c.call(ctx, "/editMessageText", editMessageRequest{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
	})
}

func (c *Client) call(ctx context.Context, path string, body any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var result apiResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&result).
		Post(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}
	if !result.OK {
		return fmt.Errorf("telegram api %s: status %d: %s", path, resp.StatusCode(), result.Description)
	}
	return nil
}
