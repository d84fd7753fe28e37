package logging

import (
	"context"
	"log/slog"
	"os"
	"time"
)

type contextKey string

const (
	NotificationIDKey contextKey = "notification_id"
	RecipientIDKey    contextKey = "recipient_id"
	ChannelKey        contextKey = "channel"
	AlertIDKey        contextKey = "alert_id"
)

// MultiHandler sends log records to multiple handlers.
type MultiHandler struct {
	handlers []slog.Handler
}

func (m *MultiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if err := h.Handle(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: newHandlers}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		newHandlers[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: newHandlers}
}

// Init installs the default logger: text to stdout, JSON to logFile. An empty
// logFile keeps stdout only.
func Init(logFile string) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(a.Key, t.Format("2006:01:02:15:04:05"))
				}
			}
			return a
		},
	}

	stdoutHandler := slog.NewTextHandler(os.Stdout, opts)

	if logFile == "" {
		slog.SetDefault(slog.New(stdoutHandler))
		return
	}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		slog.Error("failed to open log file", slog.Any("error", err))
		slog.SetDefault(slog.New(stdoutHandler))
		return
	}

	jsonHandler := slog.NewJSONHandler(f, opts)

	slog.SetDefault(slog.New(&MultiHandler{
		handlers: []slog.Handler{stdoutHandler, jsonHandler},
	}))
}

// FromContext returns the default logger enriched with any delivery
// identifiers carried by ctx.
func FromContext(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if val, ok := ctx.Value(NotificationIDKey).(string); ok {
		l = l.With("notification_id", val)
	}
	if val, ok := ctx.Value(RecipientIDKey).(string); ok {
		l = l.With("recipient_id", val)
	}
	if val, ok := ctx.Value(ChannelKey).(string); ok {
		l = l.With("channel", val)
	}
	if val, ok := ctx.Value(AlertIDKey).(string); ok {
		l = l.With("alert_id", val)
	}
	return l
}

func WithNotification(ctx context.Context, notificationID string) context.Context {
	return context.WithValue(ctx, NotificationIDKey, notificationID)
}

func WithRecipient(ctx context.Context, recipientID string) context.Context {
	return context.WithValue(ctx, RecipientIDKey, recipientID)
}

func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, ChannelKey, channel)
}

func WithAlert(ctx context.Context, alertID string) context.Context {
	return context.WithValue(ctx, AlertIDKey, alertID)
}
