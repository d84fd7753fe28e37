package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	StreamName     = "NOTIFICATIONS"
	StreamSubjects = "notifications.>"
	EventsSubject  = "notifications.events"
	ConsumerName   = "orchestrator"
)

// Consumer ingests notification requests published by the domain CRUD
// services (prescriptions, orders, appointments) over NATS JetStream and
// turns them into notifications.
type Consumer struct {
	orchestrator *Orchestrator
	conn         *nats.Conn
	consumer     jetstream.Consumer
}

// NewConsumer connects to NATS, ensures the stream and durable consumer
// exist, and returns a fetch-loop consumer.
func NewConsumer(ctx context.Context, url string, o *Orchestrator) (*Consumer, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     StreamName,
		Subjects: []string{StreamSubjects},
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		FilterSubject: EventsSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	return &Consumer{orchestrator: o, conn: conn, consumer: consumer}, nil
}

func (c *Consumer) Close() {
	c.conn.Close()
}

func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("notification event consumer started", slog.String("code", "SYS_STARTUP"))

	for {
		select {
		case <-ctx.Done():
			slog.Info("notification event consumer shutting down", slog.String("code", "SYS_SHUTDOWN"))
			return ctx.Err()
		default:
			msgs, err := c.consumer.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				slog.Error("error fetching messages", slog.String("code", "BROKER_ERROR"), slog.Any("error", err))
				continue
			}
			for msg := range msgs.Messages() {
				c.processMessage(ctx, msg)
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg jetstream.Msg) {
	var spec CreateSpec
	if err := json.Unmarshal(msg.Data(), &spec); err != nil {
		slog.Error("dropping malformed notification event",
			slog.String("code", "EVENT_MALFORMED"),
			slog.Any("error", err),
		)
		msg.Ack()
		return
	}

	id, err := c.orchestrator.CreateNotification(ctx, spec)
	if err != nil {
		// Validation errors are poison messages; everything else gets
		// redelivered.
		if errors.Is(err, ErrInvalidSpec) {
			slog.Error("dropping invalid notification event",
				slog.String("code", "EVENT_INVALID"),
				slog.Any("error", err),
			)
			msg.Ack()
			return
		}
		slog.Error("failed to create notification from event",
			slog.String("code", "EVENT_RETRY"),
			slog.Any("error", err),
		)
		msg.NakWithDelay(5 * time.Second)
		return
	}

	slog.Info("notification created from event",
		slog.String("code", "EVENT_OK"),
		slog.String("notification_id", id),
		slog.String("type", string(spec.Type)),
	)
	msg.Ack()
}
