package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"kgstyle/shop-service/internal/order"
	"kgstyle/shop-service/internal/payment"
	"kgstyle/shop-service/internal/telegram"
)

// telegramWebhook is the entry point for bot updates. Telegram retries any
// delivery that does not get a 2xx, so the handler acknowledges every
// structurally valid update, including kinds it does not act on and
// callbacks whose processing failed; business failures are logged, never
// surfaced as an acknowledgment failure.
func (s *Server) telegramWebhook(w http.ResponseWriter, r *http.Request) {
	var upd telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if upd.CallbackQuery != nil {
		s.processCallback(r.Context(), upd.CallbackQuery)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) processCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	intent, orderID, err := telegram.ParseCallback(cb.Data)
	if err != nil {
		switch {
		case errors.Is(err, telegram.ErrUnrecognizedIntent):
			s.logger.Info("ignoring unrecognized callback", "data", cb.Data)
		case errors.Is(err, telegram.ErrMalformedPayload):
			s.logger.Warn("malformed callback payload", "data", cb.Data)
		}
		s.answerCallback(ctx, cb.ID, "", false)
		return
	}

	evt := payment.NewCallbackEvent(cb.ID, intent, orderID)
	res, err := s.settler.Settle(ctx, evt)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrOrderNotFound):
			s.answerCallback(ctx, cb.ID, "Order not found", true)
		case errors.Is(err, payment.ErrInvalidTransition):
			s.answerCallback(ctx, cb.ID, fmt.Sprintf("Order #%d was already processed", orderID), true)
		default:
			s.logger.Error("settle callback failed", "order_id", orderID, "err", err)
			s.answerCallback(ctx, cb.ID, "Processing failed, please retry", true)
		}
		return
	}

	switch res.Outcome {
	case payment.OutcomeDuplicate:
		s.answerCallback(ctx, cb.ID, fmt.Sprintf("Order #%d already processed", orderID), false)
	case payment.OutcomeConfirmed:
		s.answerCallback(ctx, cb.ID, "Payment confirmed", false)
		s.editAlertMessage(ctx, cb, telegram.SettledText(orderID, res.Outcome))
	case payment.OutcomeRejected:
		s.answerCallback(ctx, cb.ID, "Payment rejected", false)
		s.editAlertMessage(ctx, cb, telegram.SettledText(orderID, res.Outcome))
	}
}

func (s *Server) answerCallback(ctx context.Context, callbackID, text string, alert bool) {
	if s.bot == nil {
		return
	}
	if err := s.bot.AnswerCallback(ctx, callbackID, text, alert); err != nil {
		s.logger.Warn("answer callback failed", "callback_id", callbackID, "err", err)
	}
}

func (s *Server) editAlertMessage(ctx context.Context, cb *telegram.CallbackQuery, text string) {
	if s.bot == nil || cb.Message == nil {
		return
	}
	if err := s.bot.EditMessageText(ctx, cb.Message.Chat.ID, cb.Message.MessageID, text); err != nil {
		s.logger.Warn("edit alert message failed", "chat_id", cb.Message.Chat.ID, "err", err)
	}
}
