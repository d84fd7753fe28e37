package channel

import (
	"context"
	"time"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/ws"
)

// WebSocketAdapter pushes in-app notifications to live connections. An
// offline recipient is a transient failure: the queue retries and the message
// lands once another channel or a later attempt reaches them.
type WebSocketAdapter struct {
	hub *ws.Hub
}

func NewWebSocketAdapter(hub *ws.Hub) *WebSocketAdapter {
	return &WebSocketAdapter{hub: hub}
}

func (a *WebSocketAdapter) Channel() domain.Channel {
	return domain.ChannelWebSocket
}

func (a *WebSocketAdapter) Send(ctx context.Context, req Request) Result {
	delivered := a.hub.SendToUser(req.RecipientID, ws.Message{
		Type: "notification",
		Payload: map[string]any{
			"notification_id": req.NotificationID,
			"priority":        req.Priority,
			"content":         req.Content,
		},
		Timestamp: time.Now(),
	})
	if !delivered {
		return Result{Err: transientErr("recipient_offline", "user %s has no active connection", req.RecipientID)}
	}
	return Result{Success: true}
}
