package notify

import (
	"context"
	"fmt"

	"kgstyle/shop-service/pkg/contracts"

	"github.com/go-resty/resty/v2"
)

type SMSConfig struct {
	URL    string
	APIKey string
	Sender string
}

// SMSChannel posts the settlement text to an HTTP SMS gateway. The channel
// is only registered when a gateway URL is configured.
type SMSChannel struct {
	cfg  SMSConfig
	http *resty.Client
}

func NewSMSChannel(cfg SMSConfig) *SMSChannel {
	return &SMSChannel{
		cfg:  cfg,
		http: resty.New().SetBaseURL(cfg.URL),
	}
}

func (s *SMSChannel) Name() string { return "sms" }

type smsGatewayResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *SMSChannel) Send(ctx context.Context, msg Message) error {
	if msg.Order.Phone == "" {
		return fmt.Errorf("order #%d has no customer phone", msg.Order.ID)
	}

	text := fmt.Sprintf("KG Style: order #%d is paid and ready for pickup.", msg.Order.ID)
	if msg.Outcome == contracts.SettlementRejected {
		text = fmt.Sprintf("KG Style: payment for order #%d could not be verified, the order was cancelled.", msg.Order.ID)
	}

	var result smsGatewayResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"phone":   msg.Order.Phone,
			"message": text,
			"sender":  s.cfg.Sender,
			"api_key": s.cfg.APIKey,
		}).
		SetResult(&result).
		Post("")
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("sms gateway: status %d: %s", resp.StatusCode(), result.Error)
	}
	return nil
}
