package domain

import "time"

type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

type AlertType string

const (
	AlertLowDeliveryRate     AlertType = "low_delivery_rate"
	AlertHighFailureRate     AlertType = "high_failure_rate"
	AlertCriticalFailureRate AlertType = "critical_failure_rate"
	AlertChannelDegraded     AlertType = "channel_degraded"
	AlertHighLatency         AlertType = "high_latency"
	AlertStuckNotifications  AlertType = "stuck_notifications"
)

// Alert is an operational problem owned by the escalation engine from
// creation to resolution. Its ID is derived from (type, severity, payload)
// so duplicate detections collapse onto one active alert.
type Alert struct {
	ID              string         `json:"id"`
	Type            AlertType      `json:"type"`
	Severity        AlertSeverity  `json:"severity"`
	Message         string         `json:"message"`
	Payload         map[string]any `json:"payload,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	LastSeenAt      time.Time      `json:"last_seen_at"`
	Occurrences     int            `json:"occurrences"`
	EscalationLevel int            `json:"escalation_level"`
	Acknowledged    bool           `json:"acknowledged"`
	AcknowledgedBy  string         `json:"acknowledged_by,omitempty"`
	AckNotes        string         `json:"ack_notes,omitempty"`
	AcknowledgedAt  *time.Time     `json:"acknowledged_at,omitempty"`
	Resolved        bool           `json:"resolved"`
	ResolvedBy      string         `json:"resolved_by,omitempty"`
	Resolution      string         `json:"resolution,omitempty"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
}

// EscalationStep is one rung of an alert type's response ladder.
type EscalationStep struct {
	Delay    time.Duration `json:"delay" yaml:"delay"`
	Roles    []Role        `json:"roles" yaml:"roles"`
	Channels []Channel     `json:"channels" yaml:"channels"`
}

// EscalationRule is the static per-alert-type configuration: the ladder of
// escalation steps plus the post-resolution cooldown. Read-only at runtime
// except through an explicit update.
type EscalationRule struct {
	Steps    []EscalationStep `json:"steps" yaml:"steps"`
	Cooldown time.Duration    `json:"cooldown" yaml:"cooldown"`
}
