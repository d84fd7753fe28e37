package events

import (
	"time"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
)

type Kind string

const (
	KindDelivery Kind = "delivery"
	KindAlert    Kind = "alert"
)

// Event is one pipeline occurrence fanned out to in-process subscribers:
// a (recipient, channel) state change or an alert lifecycle change.
type Event struct {
	Kind           Kind                 `json:"kind"`
	NotificationID string               `json:"notification_id,omitempty"`
	UserID         string               `json:"user_id,omitempty"`
	Channel        domain.Channel       `json:"channel,omitempty"`
	State          domain.DeliveryState `json:"state,omitempty"`
	AlertID        string               `json:"alert_id,omitempty"`
	AlertType      domain.AlertType     `json:"alert_type,omitempty"`
	Message        string               `json:"message,omitempty"`
	Attempt        int                  `json:"attempt,omitempty"`
	Timestamp      time.Time            `json:"timestamp"`
}
