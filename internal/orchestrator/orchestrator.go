package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/clock"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/events"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/logging"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/metrics"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/queue"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/store"
)

// ErrInvalidSpec marks rejections a retry can never fix.
var ErrInvalidSpec = errors.New("invalid notification spec")

// RecipientSpec names one target of a notification.
type RecipientSpec struct {
	UserID   string           `json:"user_id"`
	Role     domain.Role      `json:"role"`
	Channels []domain.Channel `json:"channels"`
}

// CreateSpec is the request shape domain services use to originate a
// notification.
type CreateSpec struct {
	Type         domain.NotificationType `json:"type"`
	Category     string                  `json:"category"`
	Priority     domain.Priority         `json:"priority"`
	Content      domain.Content          `json:"content"`
	Recipients   []RecipientSpec         `json:"recipients"`
	ScheduledFor *time.Time              `json:"scheduled_for,omitempty"`
	ExpiresAt    *time.Time              `json:"expires_at,omitempty"`
}

func (s *CreateSpec) Validate() error {
	if !s.Type.Valid() {
		return fmt.Errorf("unknown notification type %q", s.Type)
	}
	if !s.Priority.Valid() {
		return fmt.Errorf("unknown priority %q", s.Priority)
	}
	if s.Content.Title == "" {
		return fmt.Errorf("content title is required")
	}
	if len(s.Recipients) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	for _, r := range s.Recipients {
		if r.UserID == "" {
			return fmt.Errorf("recipient user id is required")
		}
		if len(r.Channels) == 0 {
			return fmt.Errorf("recipient %s has no channels", r.UserID)
		}
		for _, ch := range r.Channels {
			if !ch.Valid() {
				return fmt.Errorf("recipient %s: unknown channel %q", r.UserID, ch)
			}
		}
	}
	return nil
}

// PreferenceProvider is the read side of user preferences; in production it
// is the LRU cache in front of the preference store.
type PreferenceProvider interface {
	Get(ctx context.Context, userID string) (*domain.Preferences, error)
}

// Orchestrator creates notification records, applies preference filtering,
// and feeds the delivery queue. All delivery is asynchronous: the caller of
// CreateNotification only waits for the initial persistence write.
type Orchestrator struct {
	notifications store.NotificationStore
	analytics     store.AnalyticsStore
	directory     store.DirectoryStore
	queue         *queue.Queue
	prefs         PreferenceProvider
	hub           *events.Hub
	collector     *metrics.Collector
	clock         clock.Clock
}

func New(
	notifications store.NotificationStore,
	analytics store.AnalyticsStore,
	directory store.DirectoryStore,
	q *queue.Queue,
	prefs PreferenceProvider,
	hub *events.Hub,
	collector *metrics.Collector,
	clk clock.Clock,
) *Orchestrator {
	return &Orchestrator{
		notifications: notifications,
		analytics:     analytics,
		directory:     directory,
		queue:         q,
		prefs:         prefs,
		hub:           hub,
		collector:     collector,
		clock:         clk,
	}
}

// CreateNotification validates and persists the notification, then enqueues
// one delivery item per recipient unless it is scheduled for the future.
func (o *Orchestrator) CreateNotification(ctx context.Context, spec CreateSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	now := o.clock.Now()
	n := &domain.Notification{
		ID:           uuid.New().String(),
		Type:         spec.Type,
		Category:     spec.Category,
		Priority:     spec.Priority,
		Content:      spec.Content,
		CreatedAt:    now,
		ScheduledFor: spec.ScheduledFor,
		ExpiresAt:    spec.ExpiresAt,
	}
	ctx = logging.WithNotification(ctx, n.ID)

	for _, rs := range spec.Recipients {
		r := domain.Recipient{
			UserID:   rs.UserID,
			Role:     rs.Role,
			Channels: rs.Channels,
			Delivery: make(map[domain.Channel]*domain.ChannelDelivery, len(rs.Channels)),
		}
		for _, ch := range rs.Channels {
			r.Delivery[ch] = &domain.ChannelDelivery{State: domain.StatePending, UpdatedAt: now}
		}
		n.Recipients = append(n.Recipients, r)
	}
	n.Analytics.TotalRecipients = len(n.Recipients)

	// Category and channel opt-outs are applied at creation; quiet hours at
	// enqueue time so a scheduled notification is judged against its actual
	// send window.
	for i := range n.Recipients {
		o.applyOptOuts(ctx, &n.Recipients[i], n.Category)
	}

	if err := o.notifications.Create(ctx, n); err != nil {
		return "", fmt.Errorf("persist notification: %w", err)
	}
	if o.collector != nil {
		o.collector.NotificationCreated()
	}

	if n.ScheduledFor != nil && n.ScheduledFor.After(now) {
		logging.FromContext(ctx).Info("notification scheduled",
			slog.String("code", "NOTIF_SCHEDULED"),
			slog.Time("scheduledFor", *n.ScheduledFor),
		)
		return n.ID, nil
	}

	o.enqueueRecipients(ctx, n)
	return n.ID, nil
}

// applyOptOuts marks channels the recipient has opted out of as skipped. A
// category opt-out skips every channel.
func (o *Orchestrator) applyOptOuts(ctx context.Context, r *domain.Recipient, category string) {
	prefs, err := o.prefs.Get(ctx, r.UserID)
	if err != nil {
		// Fail open: a preference outage must not drop notifications.
		logging.FromContext(ctx).Warn("preferences unavailable, delivering unfiltered",
			slog.String("code", "PREF_ERROR"),
			slog.String("user_id", r.UserID),
			slog.Any("error", err),
		)
		return
	}

	now := o.clock.Now()
	for _, ch := range r.Channels {
		if !prefs.CategoryEnabled(category) || !prefs.ChannelEnabled(ch) {
			o.skip(ctx, r, ch, "blocked by preferences", now)
		}
	}
}

func (o *Orchestrator) skip(ctx context.Context, r *domain.Recipient, ch domain.Channel, reason string, now time.Time) {
	cd := r.Delivery[ch]
	if cd == nil || cd.State.Terminal() {
		return
	}
	cd.State = domain.StateSkipped
	cd.LastError = reason
	cd.UpdatedAt = now

	if err := o.analytics.RecordOutcome(ctx, ch, r.Role, "skipped", 0, now); err != nil {
		logging.FromContext(ctx).Warn("failed to record skip", slog.String("code", "DB_ERROR"), slog.Any("error", err))
	}
}

// enqueueRecipients applies quiet hours and pushes one queue item per
// recipient with at least one pending channel. Critical and emergency
// notifications are exempt from quiet-hours suppression.
func (o *Orchestrator) enqueueRecipients(ctx context.Context, n *domain.Notification) {
	l := logging.FromContext(ctx)
	now := o.clock.Now()

	for i := range n.Recipients {
		r := &n.Recipients[i]

		if !n.Priority.GuaranteedDelivery() {
			if o.inQuietHours(ctx, r.UserID, now) {
				for _, ch := range r.Channels {
					if cd := r.Delivery[ch]; cd != nil && cd.State == domain.StatePending {
						o.skip(ctx, r, ch, "quiet hours", now)
						o.persistState(ctx, n.ID, r, ch)
					}
				}
				l.Info("recipient suppressed by quiet hours",
					slog.String("code", "NOTIF_QUIET"),
					slog.String("user_id", r.UserID),
				)
				continue
			}
		}

		var pending []domain.Channel
		for _, ch := range r.Channels {
			if cd := r.Delivery[ch]; cd != nil && cd.State == domain.StatePending {
				pending = append(pending, ch)
			} else if cd != nil && cd.State == domain.StateSkipped {
				o.persistState(ctx, n.ID, r, ch)
			}
		}
		if len(pending) == 0 {
			continue
		}

		if _, err := o.queue.Enqueue(ctx, n, r.UserID, pending, now); err != nil {
			l.Error("failed to enqueue recipient",
				slog.String("code", "QUEUE_ERROR"),
				slog.String("user_id", r.UserID),
				slog.Any("error", err),
			)
		}
	}
}

func (o *Orchestrator) inQuietHours(ctx context.Context, userID string, now time.Time) bool {
	prefs, err := o.prefs.Get(ctx, userID)
	if err != nil {
		return false
	}
	inside, err := prefs.QuietHours.Contains(now)
	if err != nil {
		logging.FromContext(ctx).Warn("invalid quiet hours config",
			slog.String("code", "PREF_ERROR"),
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return false
	}
	return inside
}

func (o *Orchestrator) persistState(ctx context.Context, notificationID string, r *domain.Recipient, ch domain.Channel) {
	if err := o.notifications.UpdateChannelState(ctx, notificationID, r.UserID, ch, r.Delivery[ch]); err != nil {
		logging.FromContext(ctx).Error("failed to persist skip state", slog.String("code", "DB_ERROR"), slog.Any("error", err))
	}
}

// MarkRead records a user opening the notification.
func (o *Orchestrator) MarkRead(ctx context.Context, notificationID, userID string) error {
	now := o.clock.Now()
	if err := o.notifications.MarkRead(ctx, notificationID, userID, now); err != nil {
		return fmt.Errorf("mark read %s/%s: %w", notificationID, userID, err)
	}
	if err := o.analytics.RecordEngagement(ctx, "read", now); err != nil {
		logging.FromContext(ctx).Warn("failed to record read", slog.String("code", "DB_ERROR"), slog.Any("error", err))
	}
	return nil
}

// MarkActioned records a user following the notification's action link.
func (o *Orchestrator) MarkActioned(ctx context.Context, notificationID, userID string) error {
	now := o.clock.Now()
	if err := o.notifications.MarkActioned(ctx, notificationID, userID, now); err != nil {
		return fmt.Errorf("mark actioned %s/%s: %w", notificationID, userID, err)
	}
	if err := o.analytics.RecordEngagement(ctx, "actioned", now); err != nil {
		logging.FromContext(ctx).Warn("failed to record action", slog.String("code", "DB_ERROR"), slog.Any("error", err))
	}
	return nil
}

// HandleProviderStatus feeds webhook callbacks from email/SMS providers into
// the same per-channel state machine used for direct send results.
func (o *Orchestrator) HandleProviderStatus(ctx context.Context, ch domain.Channel, providerMessageID, status, detail string) error {
	notificationID, recipientID, err := o.notifications.LookupProviderMessage(ctx, ch, providerMessageID)
	if err != nil {
		return fmt.Errorf("resolve provider message %s: %w", providerMessageID, err)
	}
	ctx = logging.WithNotification(ctx, notificationID)
	ctx = logging.WithRecipient(ctx, recipientID)

	n, err := o.notifications.GetByID(ctx, notificationID)
	if err != nil {
		return fmt.Errorf("load notification %s: %w", notificationID, err)
	}
	r := n.Recipient(recipientID)
	if r == nil || r.Delivery[ch] == nil {
		return store.ErrNotFound
	}

	now := o.clock.Now()
	cd := r.Delivery[ch]

	var state domain.DeliveryState
	var outcome string
	requeue := false
	switch status {
	case "delivered":
		state = domain.StateDelivered
		outcome = "" // the send path already counted this delivery
		cd.DeliveredAt = &now
	case "bounced", "complaint":
		state = domain.StatePermanentlyFailed
		outcome = "bounced"
	default:
		// The item that produced this send is already gone, so a failed
		// pair must re-enter the queue itself or it would sit unretried.
		if cd.Attempts >= o.queue.MaxRetries() {
			state = domain.StatePermanentlyFailed
			outcome = "permanently_failed"
		} else {
			state = domain.StateFailed
			outcome = "failed"
			requeue = true
		}
	}
	cd.State = state
	cd.LastError = detail
	cd.UpdatedAt = now

	if err := o.notifications.UpdateChannelState(ctx, notificationID, recipientID, ch, cd); err != nil {
		return fmt.Errorf("update channel state from webhook: %w", err)
	}
	if requeue {
		if _, err := o.queue.Enqueue(ctx, n, recipientID, []domain.Channel{ch}, now); err != nil {
			logging.FromContext(ctx).Warn("failed to requeue after provider failure",
				slog.String("code", "QUEUE_ERROR"), slog.Any("error", err))
		}
	}
	if outcome != "" {
		if err := o.analytics.RecordOutcome(ctx, ch, r.Role, outcome, 0, now); err != nil {
			logging.FromContext(ctx).Warn("failed to record webhook outcome", slog.String("code", "DB_ERROR"), slog.Any("error", err))
		}
	}
	if o.hub != nil {
		o.hub.Publish(events.Event{
			Kind:           events.KindDelivery,
			NotificationID: notificationID,
			UserID:         recipientID,
			Channel:        ch,
			State:          state,
			Message:        detail,
			Timestamp:      now,
		})
	}
	return nil
}

// NotifyRoles fans an operational notification out to every user holding one
// of the roles. Used by the alert escalation engine.
func (o *Orchestrator) NotifyRoles(ctx context.Context, roles []domain.Role, channels []domain.Channel, priority domain.Priority, content domain.Content, exclude ...string) error {
	users, err := o.directory.UsersByRole(ctx, roles)
	if err != nil {
		return fmt.Errorf("resolve roles %v: %w", roles, err)
	}
	if len(users) == 0 {
		return fmt.Errorf("no users hold roles %v", roles)
	}
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	spec := CreateSpec{
		Type:     domain.TypeEscalationAlert,
		Category: "operations",
		Priority: priority,
		Content:  content,
	}
	for _, u := range users {
		if excluded[u.ID] {
			continue
		}
		spec.Recipients = append(spec.Recipients, RecipientSpec{
			UserID:   u.ID,
			Role:     u.Role,
			Channels: channels,
		})
	}
	// The actor may be the only operator; nothing to send then.
	if len(spec.Recipients) == 0 {
		return nil
	}
	_, err = o.CreateNotification(ctx, spec)
	return err
}
