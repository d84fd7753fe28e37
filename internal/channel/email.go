package channel

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"net/textproto"
	"strings"

	"github.com/google/uuid"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/config"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
)

// EmailAdapter delivers over SMTP. The Message-ID header we generate is the
// provider message id used to correlate bounce webhooks back to the
// (notification, recipient) pair.
type EmailAdapter struct {
	cfg  config.SMTPConfig
	auth smtp.Auth
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmailAdapter(cfg config.SMTPConfig) *EmailAdapter {
	var auth smtp.Auth
	if cfg.User != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.User, cfg.Password, cfg.Host)
	}
	return &EmailAdapter{
		cfg:  cfg,
		auth: auth,
		send: smtp.SendMail,
	}
}

func (a *EmailAdapter) Channel() domain.Channel {
	return domain.ChannelEmail
}

func (a *EmailAdapter) Send(ctx context.Context, req Request) Result {
	if !strings.Contains(req.Address, "@") {
		return Result{Err: permanentErr("invalid_address", "not an email address: %q", req.Address)}
	}

	messageID := fmt.Sprintf("<%s@notifications.pharmacy>", uuid.New().String())

	fromHeader := a.cfg.From
	if strings.TrimSpace(a.cfg.FromName) != "" {
		fromHeader = fmt.Sprintf("%s <%s>", a.cfg.FromName, a.cfg.From)
	}

	body := req.Content.Message
	if req.Content.ActionURL != "" {
		body = fmt.Sprintf("%s\r\n\r\n%s: %s", body, req.Content.ActionText, req.Content.ActionURL)
	}

	lines := []string{
		fmt.Sprintf("From: %s", sanitizeHeader(fromHeader)),
		fmt.Sprintf("To: %s", sanitizeHeader(req.Address)),
		fmt.Sprintf("Subject: %s", sanitizeHeader(req.Content.Title)),
		fmt.Sprintf("Message-ID: %s", messageID),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}
	msg := []byte(strings.Join(lines, "\r\n"))

	addr := fmt.Sprintf("%s:%s", a.cfg.Host, a.cfg.Port)
	if err := a.send(addr, a.auth, a.cfg.From, []string{req.Address}, msg); err != nil {
		return Result{Err: classifySMTPError(err)}
	}
	return Result{Success: true, ProviderMessageID: messageID}
}

func classifySMTPError(err error) *SendError {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		if protoErr.Code >= 500 {
			return permanentErr("smtp_rejected", "smtp %d: %s", protoErr.Code, protoErr.Msg)
		}
		return transientErr("smtp_deferred", "smtp %d: %s", protoErr.Code, protoErr.Msg)
	}
	return transientErr("smtp_unavailable", "smtp send: %v", err)
}

func sanitizeHeader(v string) string {
	v = strings.ReplaceAll(v, "\r", "")
	return strings.ReplaceAll(v, "\n", "")
}
