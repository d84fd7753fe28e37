package store

import (
	"context"
	"errors"
	"time"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
)

var ErrNotFound = errors.New("not found")

type NotificationStore interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	// UpdateChannelState replaces the state record for one (recipient,
	// channel) pair. Updates are keyed by (notificationID, recipientID,
	// channel) so concurrent writers never touch the same row.
	UpdateChannelState(ctx context.Context, notificationID, recipientID string, ch domain.Channel, cd *domain.ChannelDelivery) error
	MarkRead(ctx context.Context, notificationID, recipientID string, at time.Time) error
	MarkActioned(ctx context.Context, notificationID, recipientID string, at time.Time) error
	// FindDue returns scheduled notifications whose scheduled_for has passed.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.Notification, error)
	ClearScheduled(ctx context.Context, id string) error
	// FindStuck returns notifications created before cutoff whose recipient
	// states are still all pending.
	FindStuck(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Notification, error)
	FindExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Notification, error)
	// LookupProviderMessage resolves a provider message id from a webhook
	// callback to the (notification, recipient) pair it belongs to.
	LookupProviderMessage(ctx context.Context, ch domain.Channel, providerMessageID string) (notificationID, recipientID string, err error)
}

type QueueStore interface {
	// Enqueue inserts the item unless a pending item for the same
	// (notification, recipient) already exists. Returns false on the no-op.
	Enqueue(ctx context.Context, item *domain.QueueItem) (bool, error)
	// DequeueBatch leases up to n ready items until now+lease, ordered by
	// priority descending then enqueue order. Leased items are invisible to
	// other consumers until the lease expires.
	DequeueBatch(ctx context.Context, now time.Time, n int, lease time.Duration) ([]*domain.QueueItem, error)
	Delete(ctx context.Context, id string) error
	// Reschedule releases the lease and makes the item visible again at
	// nextAttempt with the given attempt count.
	Reschedule(ctx context.Context, id string, attemptCount int, nextAttempt time.Time) error
	DeleteByNotification(ctx context.Context, notificationID string) error
	Depth(ctx context.Context) (int64, error)
}

// ChannelStats aggregates send outcomes for one slice of the traffic.
type ChannelStats struct {
	Sent         int64 `json:"sent"`
	Delivered    int64 `json:"delivered"`
	Failed       int64 `json:"failed"`
	LatencySumMs int64 `json:"-"`
	LatencyCount int64 `json:"-"`
}

func (s *ChannelStats) DeliveryRate() float64 {
	if s.Sent == 0 {
		return 0
	}
	return float64(s.Delivered) / float64(s.Sent)
}

func (s *ChannelStats) FailureRate() float64 {
	if s.Sent == 0 {
		return 0
	}
	return float64(s.Failed) / float64(s.Sent)
}

func (s *ChannelStats) AvgLatencyMs() float64 {
	if s.LatencyCount == 0 {
		return 0
	}
	return float64(s.LatencySumMs) / float64(s.LatencyCount)
}

// WindowStats is the aggregate over a rolling time window.
type WindowStats struct {
	From       time.Time                        `json:"from"`
	To         time.Time                        `json:"to"`
	Overall    ChannelStats                     `json:"overall"`
	PerChannel map[domain.Channel]*ChannelStats `json:"per_channel"`
	PerRole    map[domain.Role]*ChannelStats    `json:"per_role"`
}

// TrendPoint is one hourly bucket of a delivery report series.
type TrendPoint struct {
	Bucket    time.Time `json:"bucket"`
	Sent      int64     `json:"sent"`
	Delivered int64     `json:"delivered"`
	Failed    int64     `json:"failed"`
}

type AnalyticsStore interface {
	// RecordOutcome folds one attempt outcome into the hour-bucketed
	// counters. status is a terminal-ish outcome label: delivered, failed,
	// permanently_failed, bounced or skipped.
	RecordOutcome(ctx context.Context, ch domain.Channel, role domain.Role, status string, latencyMs int64, at time.Time) error
	RecordEngagement(ctx context.Context, kind string, at time.Time) error
	Window(ctx context.Context, from, to time.Time) (*WindowStats, error)
	Trend(ctx context.Context, from, to time.Time) ([]TrendPoint, error)
}

type AlertStore interface {
	SaveResolved(ctx context.Context, a *domain.Alert) error
	History(ctx context.Context, limit int) ([]*domain.Alert, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type PreferenceStore interface {
	Get(ctx context.Context, userID string) (*domain.Preferences, error)
}

type DirectoryStore interface {
	UsersByRole(ctx context.Context, roles []domain.Role) ([]*domain.User, error)
}
