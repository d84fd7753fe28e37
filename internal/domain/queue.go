package domain

import "time"

// QueueItem is one unit of delivery work: a single recipient of a single
// notification, across that recipient's channel set. At most one non-leased
// item exists per (notification, recipient) at a time.
type QueueItem struct {
	ID             string     `json:"id" db:"id"`
	NotificationID string     `json:"notification_id" db:"notification_id"`
	RecipientID    string     `json:"recipient_id" db:"recipient_id"`
	Channels       []Channel  `json:"channels" db:"channels"`
	Priority       Priority   `json:"priority" db:"priority"`
	ScheduledFor   time.Time  `json:"scheduled_for" db:"scheduled_for"`
	AttemptCount   int        `json:"attempt_count" db:"attempt_count"`
	LeasedUntil    *time.Time `json:"leased_until,omitempty" db:"leased_until"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}
