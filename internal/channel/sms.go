package channel

import (
	"context"
	"encoding/json"
	"time"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/config"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/httpclient"
)

// SMSAdapter delivers through an HTTP SMS gateway.
type SMSAdapter struct {
	cfg    config.SMSConfig
	client *httpclient.Client
}

func NewSMSAdapter(cfg config.SMSConfig) *SMSAdapter {
	return &SMSAdapter{
		cfg: cfg,
		client: httpclient.New(15*time.Second, map[string]string{
			"Authorization": "Bearer " + cfg.APIKey,
		}),
	}
}

func (a *SMSAdapter) Channel() domain.Channel {
	return domain.ChannelSMS
}

type smsPayload struct {
	To      string `json:"to"`
	Sender  string `json:"sender,omitempty"`
	Message string `json:"message"`
}

type smsResponse struct {
	MessageID string `json:"message_id"`
}

func (a *SMSAdapter) Send(ctx context.Context, req Request) Result {
	if req.Address == "" {
		return Result{Err: permanentErr("invalid_address", "recipient has no phone number")}
	}

	text := req.Content.Title
	if req.Content.Message != "" {
		text += ": " + req.Content.Message
	}

	payload, err := json.Marshal(smsPayload{
		To:      req.Address,
		Sender:  a.cfg.Sender,
		Message: text,
	})
	if err != nil {
		return Result{Err: transientErr("encode_failed", "marshal sms payload: %v", err)}
	}

	resp, err := a.client.Post(ctx, a.cfg.GatewayURL, payload)
	if err != nil {
		return Result{Err: transientErr("gateway_unreachable", "sms gateway: %v", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{Err: classifyHTTPStatus(resp.StatusCode, resp.Body)}
	}

	var body smsResponse
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		// Gateway accepted the message but returned an unexpected body.
		return Result{Success: true}
	}
	return Result{Success: true, ProviderMessageID: body.MessageID}
}
