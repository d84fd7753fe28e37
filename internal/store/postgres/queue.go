package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
)

type QueueStore struct {
	db *DB
}

func NewQueueStore(db *DB) *QueueStore {
	return &QueueStore{db: db}
}

func (s *QueueStore) Enqueue(ctx context.Context, item *domain.QueueItem) (bool, error) {
	channels := make([]string, len(item.Channels))
	for i, ch := range item.Channels {
		channels[i] = string(ch)
	}

	tag, err := s.db.Pool.Exec(ctx, `
		INSERT INTO delivery_queue (id, notification_id, recipient_id, channels, priority, priority_rank, scheduled_for, attempt_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (notification_id, recipient_id) DO NOTHING
	`, item.ID, item.NotificationID, item.RecipientID, channels, item.Priority, item.Priority.Rank(),
		item.ScheduledFor, item.AttemptCount, item.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("enqueue item: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *QueueStore) DequeueBatch(ctx context.Context, now time.Time, n int, lease time.Duration) ([]*domain.QueueItem, error) {
	leasedUntil := now.Add(lease)

	rows, err := s.db.Pool.Query(ctx, `
		UPDATE delivery_queue SET leased_until = $1
		WHERE id IN (
			SELECT id FROM delivery_queue
			WHERE scheduled_for <= $2 AND (leased_until IS NULL OR leased_until <= $2)
			ORDER BY priority_rank DESC, created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, notification_id, recipient_id, channels, priority, scheduled_for, attempt_count, leased_until, created_at
	`, leasedUntil, now, n)
	if err != nil {
		return nil, fmt.Errorf("dequeue batch: %w", err)
	}
	defer rows.Close()

	var items []*domain.QueueItem
	for rows.Next() {
		var item domain.QueueItem
		var channels []string
		err := rows.Scan(&item.ID, &item.NotificationID, &item.RecipientID, &channels, &item.Priority,
			&item.ScheduledFor, &item.AttemptCount, &item.LeasedUntil, &item.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		for _, ch := range channels {
			item.Channels = append(item.Channels, domain.Channel(ch))
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

func (s *QueueStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.Pool.Exec(ctx, `DELETE FROM delivery_queue WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete queue item: %w", err)
	}
	return nil
}

func (s *QueueStore) Reschedule(ctx context.Context, id string, attemptCount int, nextAttempt time.Time) error {
	_, err := s.db.Pool.Exec(ctx, `
		UPDATE delivery_queue
		SET attempt_count = $1, scheduled_for = $2, leased_until = NULL
		WHERE id = $3
	`, attemptCount, nextAttempt, id)
	if err != nil {
		return fmt.Errorf("reschedule queue item: %w", err)
	}
	return nil
}

func (s *QueueStore) DeleteByNotification(ctx context.Context, notificationID string) error {
	_, err := s.db.Pool.Exec(ctx, `DELETE FROM delivery_queue WHERE notification_id = $1`, notificationID)
	if err != nil {
		return fmt.Errorf("delete queue items for notification: %w", err)
	}
	return nil
}

func (s *QueueStore) Depth(ctx context.Context) (int64, error) {
	var depth int64
	err := s.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM delivery_queue`).Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return depth, nil
}
