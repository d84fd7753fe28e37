package channel

import (
	"context"
	"fmt"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
)

// SendError classifies a failed attempt. Permanent errors (invalid address,
// provider bounce) are never retried; everything else is treated as transient
// and handed back to the queue for backoff.
type SendError struct {
	Code      string
	Permanent bool
	Message   string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func transientErr(code, format string, args ...any) *SendError {
	return &SendError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func permanentErr(code, format string, args ...any) *SendError {
	return &SendError{Code: code, Permanent: true, Message: fmt.Sprintf(format, args...)}
}

// Request carries everything an adapter needs for one attempt. Content is
// already channel-ready; rendering happens upstream.
type Request struct {
	NotificationID string
	RecipientID    string
	Address        string
	Priority       domain.Priority
	Content        domain.Content
}

// Result is the outcome of one attempt. Expected provider failures come back
// as Success=false with a classified Err, never as a panic or a raw error.
type Result struct {
	Success           bool
	ProviderMessageID string
	Err               *SendError
}

// Adapter is the uniform send contract over one delivery medium. Adapters
// must be safe for concurrent use.
type Adapter interface {
	Channel() domain.Channel
	Send(ctx context.Context, req Request) Result
}

// classifyHTTPStatus maps a provider HTTP status to a send error.
func classifyHTTPStatus(status int, body string) *SendError {
	switch {
	case status == 400 || status == 404 || status == 422:
		return permanentErr("invalid_address", "provider rejected recipient (%d): %s", status, body)
	case status == 429:
		return transientErr("rate_limited", "provider rate limit (%d)", status)
	case status >= 500:
		return transientErr("provider_error", "provider failure (%d): %s", status, body)
	default:
		return transientErr("unexpected_status", "unexpected provider status %d: %s", status, body)
	}
}
