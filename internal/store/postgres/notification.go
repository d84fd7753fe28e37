package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/store"
)

type NotificationStore struct {
	db *DB
}

func NewNotificationStore(db *DB) *NotificationStore {
	return &NotificationStore{db: db}
}

func (s *NotificationStore) Create(ctx context.Context, n *domain.Notification) error {
	content, err := json.Marshal(n.Content)
	if err != nil {
		return fmt.Errorf("marshal content: %w", err)
	}

	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO notifications (id, type, category, priority, content, created_at, scheduled_for, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, n.ID, n.Type, n.Category, n.Priority, content, n.CreatedAt, n.ScheduledFor, n.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	for i := range n.Recipients {
		r := &n.Recipients[i]
		channels := make([]string, len(r.Channels))
		for j, ch := range r.Channels {
			channels[j] = string(ch)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO notification_recipients (notification_id, user_id, role, channels)
			VALUES ($1, $2, $3, $4)
		`, n.ID, r.UserID, r.Role, channels)
		if err != nil {
			return fmt.Errorf("insert recipient %s: %w", r.UserID, err)
		}

		for ch, cd := range r.Delivery {
			_, err = tx.Exec(ctx, `
				INSERT INTO recipient_channel_state (notification_id, user_id, channel, state, attempts, last_error, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, n.ID, r.UserID, ch, cd.State, cd.Attempts, nullable(cd.LastError), cd.UpdatedAt)
			if err != nil {
				return fmt.Errorf("insert channel state %s/%s: %w", r.UserID, ch, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit notification: %w", err)
	}
	return nil
}

func (s *NotificationStore) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var n domain.Notification
	var content []byte

	err := s.db.Pool.QueryRow(ctx, `
		SELECT id, type, category, priority, content, created_at, scheduled_for, expires_at
		FROM notifications WHERE id = $1
	`, id).Scan(&n.ID, &n.Type, &n.Category, &n.Priority, &content, &n.CreatedAt, &n.ScheduledFor, &n.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}

	if err := json.Unmarshal(content, &n.Content); err != nil {
		return nil, fmt.Errorf("unmarshal content: %w", err)
	}

	if err := s.loadRecipients(ctx, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *NotificationStore) loadRecipients(ctx context.Context, n *domain.Notification) error {
	rows, err := s.db.Pool.Query(ctx, `
		SELECT user_id, role, channels, read_at, actioned_at
		FROM notification_recipients WHERE notification_id = $1
	`, n.ID)
	if err != nil {
		return fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	byUser := make(map[string]*domain.Recipient)
	for rows.Next() {
		var r domain.Recipient
		var channels []string
		if err := rows.Scan(&r.UserID, &r.Role, &channels, &r.ReadAt, &r.ActionedAt); err != nil {
			return fmt.Errorf("scan recipient: %w", err)
		}
		for _, ch := range channels {
			r.Channels = append(r.Channels, domain.Channel(ch))
		}
		r.Delivery = make(map[domain.Channel]*domain.ChannelDelivery)
		n.Recipients = append(n.Recipients, r)
		byUser[r.UserID] = &n.Recipients[len(n.Recipients)-1]
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate recipients: %w", err)
	}

	stateRows, err := s.db.Pool.Query(ctx, `
		SELECT user_id, channel, state, attempts, COALESCE(last_error, ''), COALESCE(provider_message_id, ''), COALESCE(latency_ms, 0), delivered_at, updated_at
		FROM recipient_channel_state WHERE notification_id = $1
	`, n.ID)
	if err != nil {
		return fmt.Errorf("query channel states: %w", err)
	}
	defer stateRows.Close()

	for stateRows.Next() {
		var userID string
		var ch domain.Channel
		var cd domain.ChannelDelivery
		if err := stateRows.Scan(&userID, &ch, &cd.State, &cd.Attempts, &cd.LastError, &cd.ProviderMessageID, &cd.LatencyMs, &cd.DeliveredAt, &cd.UpdatedAt); err != nil {
			return fmt.Errorf("scan channel state: %w", err)
		}
		if r, ok := byUser[userID]; ok {
			r.Delivery[ch] = &cd
		}
	}
	return stateRows.Err()
}

func (s *NotificationStore) UpdateChannelState(ctx context.Context, notificationID, recipientID string, ch domain.Channel, cd *domain.ChannelDelivery) error {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE recipient_channel_state
		SET state = $1, attempts = $2, last_error = $3, provider_message_id = $4, latency_ms = $5, delivered_at = $6, updated_at = $7
		WHERE notification_id = $8 AND user_id = $9 AND channel = $10
	`, cd.State, cd.Attempts, nullable(cd.LastError), nullable(cd.ProviderMessageID), cd.LatencyMs, cd.DeliveredAt, cd.UpdatedAt,
		notificationID, recipientID, ch)
	if err != nil {
		return fmt.Errorf("update channel state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *NotificationStore) MarkRead(ctx context.Context, notificationID, recipientID string, at time.Time) error {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE notification_recipients SET read_at = COALESCE(read_at, $1)
		WHERE notification_id = $2 AND user_id = $3
	`, at, notificationID, recipientID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *NotificationStore) MarkActioned(ctx context.Context, notificationID, recipientID string, at time.Time) error {
	tag, err := s.db.Pool.Exec(ctx, `
		UPDATE notification_recipients SET actioned_at = COALESCE(actioned_at, $1)
		WHERE notification_id = $2 AND user_id = $3
	`, at, notificationID, recipientID)
	if err != nil {
		return fmt.Errorf("mark actioned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *NotificationStore) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.Notification, error) {
	return s.findIDs(ctx, `
		SELECT id FROM notifications
		WHERE scheduled_for IS NOT NULL AND scheduled_for <= $1
		ORDER BY scheduled_for ASC LIMIT $2
	`, now, limit)
}

func (s *NotificationStore) ClearScheduled(ctx context.Context, id string) error {
	_, err := s.db.Pool.Exec(ctx, `UPDATE notifications SET scheduled_for = NULL WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("clear scheduled: %w", err)
	}
	return nil
}

func (s *NotificationStore) FindStuck(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Notification, error) {
	return s.findIDs(ctx, `
		SELECT n.id FROM notifications n
		WHERE n.created_at <= $1
		  AND n.scheduled_for IS NULL
		  AND EXISTS (
			SELECT 1 FROM recipient_channel_state s
			WHERE s.notification_id = n.id AND s.state = 'pending'
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM recipient_channel_state s
			WHERE s.notification_id = n.id AND s.state <> 'pending'
		  )
		ORDER BY n.created_at ASC LIMIT $2
	`, cutoff, limit)
}

func (s *NotificationStore) FindExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Notification, error) {
	return s.findIDs(ctx, `
		SELECT n.id FROM notifications n
		WHERE n.expires_at IS NOT NULL AND n.expires_at <= $1
		  AND EXISTS (
			SELECT 1 FROM recipient_channel_state s
			WHERE s.notification_id = n.id AND s.state IN ('pending', 'failed', 'sending')
		  )
		ORDER BY n.expires_at ASC LIMIT $2
	`, now, limit)
}

func (s *NotificationStore) findIDs(ctx context.Context, query string, args ...any) ([]*domain.Notification, error) {
	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan notification id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notification ids: %w", err)
	}
	rows.Close()

	var out []*domain.Notification
	for _, id := range ids {
		n, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *NotificationStore) LookupProviderMessage(ctx context.Context, ch domain.Channel, providerMessageID string) (string, string, error) {
	var notificationID, recipientID string
	err := s.db.Pool.QueryRow(ctx, `
		SELECT notification_id, user_id FROM recipient_channel_state
		WHERE channel = $1 AND provider_message_id = $2
	`, ch, providerMessageID).Scan(&notificationID, &recipientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", store.ErrNotFound
		}
		return "", "", fmt.Errorf("lookup provider message: %w", err)
	}
	return notificationID, recipientID, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
