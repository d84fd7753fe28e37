package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/clock"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/logging"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/retry"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/store"
)

// Queue is the durable, priority-aware work queue of per-recipient delivery
// items. Enqueueing the same (notification, recipient) twice while a pending
// item exists is a no-op; leased items become visible again when the lease
// expires, giving at-least-once delivery.
type Queue struct {
	items         store.QueueStore
	notifications store.NotificationStore
	backoff       *retry.Backoff
	clock         clock.Clock
	maxRetries    int
	lease         time.Duration
}

type Options struct {
	MaxRetries int
	Lease      time.Duration
	Backoff    *retry.Backoff
}

func New(items store.QueueStore, notifications store.NotificationStore, clk clock.Clock, opts Options) *Queue {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 3
	}
	if opts.Lease <= 0 {
		opts.Lease = 60 * time.Second
	}
	if opts.Backoff == nil {
		opts.Backoff = retry.DefaultBackoff()
	}
	return &Queue{
		items:         items,
		notifications: notifications,
		backoff:       opts.Backoff,
		clock:         clk,
		maxRetries:    opts.MaxRetries,
		lease:         opts.Lease,
	}
}

func (q *Queue) MaxRetries() int {
	return q.maxRetries
}

// Enqueue adds one delivery item for a recipient's channel set. Returns false
// when a pending item for the same (notification, recipient) already exists.
func (q *Queue) Enqueue(ctx context.Context, n *domain.Notification, recipientID string, channels []domain.Channel, when time.Time) (bool, error) {
	if len(channels) == 0 {
		return false, fmt.Errorf("enqueue %s/%s: empty channel set", n.ID, recipientID)
	}
	item := &domain.QueueItem{
		ID:             uuid.New().String(),
		NotificationID: n.ID,
		RecipientID:    recipientID,
		Channels:       channels,
		Priority:       n.Priority,
		ScheduledFor:   when,
		CreatedAt:      q.clock.Now(),
	}
	inserted, err := q.items.Enqueue(ctx, item)
	if err != nil {
		return false, fmt.Errorf("enqueue %s/%s: %w", n.ID, recipientID, err)
	}
	return inserted, nil
}

// DequeueBatch leases up to n ready items.
func (q *Queue) DequeueBatch(ctx context.Context, n int) ([]*domain.QueueItem, error) {
	return q.items.DequeueBatch(ctx, q.clock.Now(), n, q.lease)
}

// MarkProcessed removes a finished item.
func (q *Queue) MarkProcessed(ctx context.Context, item *domain.QueueItem) error {
	return q.items.Delete(ctx, item.ID)
}

// MarkFailed records a failed processing round. Below the retry budget the
// item is rescheduled with exponential backoff; at the budget every channel
// still awaiting delivery is marked permanently_failed and the item removed.
// Exhaustion is reported through the terminal state, never silently dropped.
func (q *Queue) MarkFailed(ctx context.Context, item *domain.QueueItem, n *domain.Notification, reason string) error {
	ctx = logging.WithNotification(ctx, item.NotificationID)
	ctx = logging.WithRecipient(ctx, item.RecipientID)
	l := logging.FromContext(ctx)

	attempt := item.AttemptCount + 1
	if attempt < q.maxRetries {
		delay := q.backoff.NextDelay(item.AttemptCount)
		l.Info("rescheduling delivery item",
			slog.String("code", "DEL_RETRY"),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("reason", reason),
		)
		if err := q.items.Reschedule(ctx, item.ID, attempt, q.clock.Now().Add(delay)); err != nil {
			return fmt.Errorf("reschedule item %s: %w", item.ID, err)
		}
		item.AttemptCount = attempt
		return nil
	}

	l.Error("terminal failure: max retries exceeded",
		slog.String("code", "DEL_FAILED"),
		slog.Int("attempts", attempt),
		slog.Int("maxRetries", q.maxRetries),
		slog.String("reason", reason),
	)

	recipient := n.Recipient(item.RecipientID)
	if recipient != nil {
		now := q.clock.Now()
		for _, ch := range item.Channels {
			cd := recipient.Delivery[ch]
			if cd == nil || cd.State.Terminal() {
				continue
			}
			cd.State = domain.StatePermanentlyFailed
			if cd.LastError == "" {
				cd.LastError = reason
			}
			cd.UpdatedAt = now
			if err := q.notifications.UpdateChannelState(ctx, n.ID, recipient.UserID, ch, cd); err != nil {
				l.Error("failed to persist terminal state", slog.String("code", "DB_ERROR"), slog.Any("error", err))
			}
		}
	}

	if err := q.items.Delete(ctx, item.ID); err != nil {
		return fmt.Errorf("delete exhausted item %s: %w", item.ID, err)
	}
	return nil
}

// Requeue makes an existing notification's recipients eligible for another
// delivery round. Used by the monitor's stuck-notification self-healing.
func (q *Queue) Requeue(ctx context.Context, n *domain.Notification) (int, error) {
	count := 0
	for i := range n.Recipients {
		r := &n.Recipients[i]
		var channels []domain.Channel
		for _, ch := range r.Channels {
			cd := r.Delivery[ch]
			if cd == nil || !cd.State.Terminal() {
				channels = append(channels, ch)
			}
		}
		if len(channels) == 0 {
			continue
		}
		inserted, err := q.Enqueue(ctx, n, r.UserID, channels, q.clock.Now())
		if err != nil {
			return count, err
		}
		if inserted {
			count++
		}
	}
	return count, nil
}

func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.items.Depth(ctx)
}

// DropNotification removes all queue items for a notification, used when it
// expires.
func (q *Queue) DropNotification(ctx context.Context, notificationID string) error {
	return q.items.DeleteByNotification(ctx, notificationID)
}
