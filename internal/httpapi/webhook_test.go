package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"kgstyle/shop-service/internal/order"
	"kgstyle/shop-service/internal/payment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettler struct {
	results map[string]payment.Result
	errs    map[string]error
	settled map[string]int
	events  []payment.CallbackEvent
}

func newFakeSettler() *fakeSettler {
	return &fakeSettler{
		results: make(map[string]payment.Result),
		errs:    make(map[string]error),
		settled: make(map[string]int),
	}
}

func (f *fakeSettler) Settle(_ context.Context, evt payment.CallbackEvent) (payment.Result, error) {
	f.events = append(f.events, evt)
	f.settled[evt.EventID]++
	if f.settled[evt.EventID] > 1 {
		return payment.Result{Outcome: payment.OutcomeDuplicate, OrderID: evt.OrderID}, nil
	}
	if err, ok := f.errs[evt.EventID]; ok {
		return payment.Result{}, err
	}
	if res, ok := f.results[evt.EventID]; ok {
		return res, nil
	}
	outcome := payment.OutcomeConfirmed
	if evt.Intent == payment.IntentReject {
		outcome = payment.OutcomeRejected
	}
	return payment.Result{Outcome: outcome, OrderID: evt.OrderID}, nil
}

type botCall struct {
	Method string
	Text   string
	Alert  bool
	ChatID int64
}

type fakeBot struct {
	calls []botCall
}

func (f *fakeBot) AnswerCallback(_ context.Context, id, text string, alert bool) error {
	f.calls = append(f.calls, botCall{Method: "answer", Text: text, Alert: alert})
	return nil
}

func (f *fakeBot) EditMessageText(_ context.Context, chatID, messageID int64, text string) error {
	f.calls = append(f.calls, botCall{Method: "edit", Text: text, ChatID: chatID})
	return nil
}

func (f *fakeBot) edits() []botCall {
	var out []botCall
	for _, c := range f.calls {
		if c.Method == "edit" {
			out = append(out, c)
		}
	}
	return out
}

func newWebhookServer(t *testing.T) (*Server, *fakeSettler, *fakeBot) {
	t.Helper()
	settler := newFakeSettler()
	bot := &fakeBot{}
	srv := NewServer(&fakeOrderService{orders: map[int64]*order.Order{}}, settler, bot, slog.Default())
	return srv, settler, bot
}

func callbackBody(callbackID, data string) string {
	return fmt.Sprintf(`{
		"update_id": 1,
		"callback_query": {
			"id": %q,
			"data": %q,
			"message": {"message_id": 1001, "chat": {"id": 777}}
		}
	}`, callbackID, data)
}

func postWebhook(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestWebhookHappyPath(t *testing.T) {
	srv, settler, bot := newWebhookServer(t)

	rec := postWebhook(t, srv, callbackBody("cb-1", "confirm_payment_42"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)

	require.Len(t, settler.events, 1)
	assert.Equal(t, payment.IntentConfirm, settler.events[0].Intent)
	assert.EqualValues(t, 42, settler.events[0].OrderID)
	assert.Equal(t, "cb-1", settler.events[0].EventID)

	edits := bot.edits()
	require.Len(t, edits, 1)
	assert.Contains(t, edits[0].Text, "#42")
	assert.EqualValues(t, 777, edits[0].ChatID)
}

func TestWebhookReplaySameEventID(t *testing.T) {
	srv, settler, bot := newWebhookServer(t)

	first := postWebhook(t, srv, callbackBody("cb-1", "confirm_payment_42"))
	second := postWebhook(t, srv, callbackBody("cb-1", "confirm_payment_42"))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code, "replay must still be acknowledged")

	assert.Len(t, settler.events, 2, "both deliveries reach the gate")
	assert.Len(t, bot.edits(), 1, "only the first settlement edits the alert")
}

func TestWebhookStaleTransition(t *testing.T) {
	srv, settler, bot := newWebhookServer(t)
	settler.errs["cb-2"] = payment.ErrInvalidTransition

	rec := postWebhook(t, srv, callbackBody("cb-2", "reject_payment_42"))

	assert.Equal(t, http.StatusOK, rec.Code, "invalid transition is not a transport failure")
	assert.Empty(t, bot.edits(), "stale event must not rewrite the alert")

	require.NotEmpty(t, bot.calls)
	answer := bot.calls[0]
	assert.Equal(t, "answer", answer.Method)
	assert.True(t, answer.Alert)
}

func TestWebhookUnrecognizedIntent(t *testing.T) {
	srv, settler, bot := newWebhookServer(t)

	rec := postWebhook(t, srv, callbackBody("cb-3", "do_something_weird_42"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, settler.events, "unrecognized data must not reach the settler")
	require.Len(t, bot.calls, 1)
	assert.Equal(t, "answer", bot.calls[0].Method)
}

func TestWebhookMalformedOrderID(t *testing.T) {
	srv, settler, _ := newWebhookServer(t)

	rec := postWebhook(t, srv, callbackBody("cb-4", "confirm_payment_abc"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, settler.events)
}

func TestWebhookIgnoresNonCallbackUpdates(t *testing.T) {
	srv, settler, bot := newWebhookServer(t)

	rec := postWebhook(t, srv, `{"update_id": 5, "message": {"message_id": 1, "chat": {"id": 2}, "text": "hello"}}`)

	assert.Equal(t, http.StatusOK, rec.Code, "unhandled update kinds must be acknowledged")
	assert.Empty(t, settler.events)
	assert.Empty(t, bot.calls)
}

func TestWebhookRejectsInvalidJSON(t *testing.T) {
	srv, _, _ := newWebhookServer(t)

	rec := postWebhook(t, srv, `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookOrderNotFound(t *testing.T) {
	srv, settler, bot := newWebhookServer(t)
	settler.errs["cb-9"] = order.ErrOrderNotFound

	rec := postWebhook(t, srv, callbackBody("cb-9", "confirm_payment_999"))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, bot.calls, 1)
	assert.Contains(t, bot.calls[0].Text, "not found")
	assert.True(t, bot.calls[0].Alert)
}

func TestWebhookSynthesizesEventIDWhenMissing(t *testing.T) {
	srv, settler, _ := newWebhookServer(t)

	body := `{"update_id": 1, "callback_query": {"id": "", "data": "confirm_payment_42"}}`
	rec := postWebhook(t, srv, body)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, settler.events, 1)
	assert.NotEmpty(t, settler.events[0].EventID)
}

func TestWebhookWorksWithoutBot(t *testing.T) {
	settler := newFakeSettler()
	srv := NewServer(&fakeOrderService{orders: map[int64]*order.Order{}}, settler, nil, slog.Default())

	rec := postWebhook(t, srv, callbackBody("cb-1", "confirm_payment_42"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, settler.events, 1)
}
