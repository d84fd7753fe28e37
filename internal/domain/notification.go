package domain

import "time"

type Channel string

const (
	ChannelWebSocket Channel = "websocket"
	ChannelEmail     Channel = "email"
	ChannelSMS       Channel = "sms"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelWebSocket, ChannelEmail, ChannelSMS:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityMedium    Priority = "medium"
	PriorityHigh      Priority = "high"
	PriorityCritical  Priority = "critical"
	PriorityEmergency Priority = "emergency"
)

var priorityRanks = map[Priority]int{
	PriorityLow:       1,
	PriorityMedium:    2,
	PriorityHigh:      3,
	PriorityCritical:  4,
	PriorityEmergency: 5,
}

// Rank maps a priority to an integer usable for queue ordering.
// Unknown priorities rank below low.
func (p Priority) Rank() int {
	return priorityRanks[p]
}

func (p Priority) Valid() bool {
	_, ok := priorityRanks[p]
	return ok
}

// GuaranteedDelivery reports whether this priority bypasses quiet-hours
// suppression and uses the cross-channel fallback chain.
func (p Priority) GuaranteedDelivery() bool {
	return p == PriorityCritical || p == PriorityEmergency
}

type NotificationType string

const (
	TypePrescriptionCreated NotificationType = "prescription_created"
	TypePrescriptionReady   NotificationType = "prescription_ready"
	TypeOrderStatusChanged  NotificationType = "order_status_changed"
	TypeAppointmentReminder NotificationType = "appointment_reminder"
	TypeInventoryLowStock   NotificationType = "inventory_low_stock"
	TypePaymentReceived     NotificationType = "payment_received"
	TypePaymentFailed       NotificationType = "payment_failed"
	TypeAccountSecurity     NotificationType = "account_security"
	TypeSystemAlert         NotificationType = "system_alert"
	TypeEscalationAlert     NotificationType = "escalation_alert"
)

var knownTypes = map[NotificationType]bool{
	TypePrescriptionCreated: true,
	TypePrescriptionReady:   true,
	TypeOrderStatusChanged:  true,
	TypeAppointmentReminder: true,
	TypeInventoryLowStock:   true,
	TypePaymentReceived:     true,
	TypePaymentFailed:       true,
	TypeAccountSecurity:     true,
	TypeSystemAlert:         true,
	TypeEscalationAlert:     true,
}

func (t NotificationType) Valid() bool {
	return knownTypes[t]
}

type Role string

const (
	RolePatient  Role = "patient"
	RoleDoctor   Role = "doctor"
	RolePharmacy Role = "pharmacy"
	RoleAdmin    Role = "admin"
)

// DeliveryState is the per (recipient, channel) state machine. A pair is in
// exactly one state at a time; delivered, permanently_failed and skipped are
// terminal.
type DeliveryState string

const (
	StatePending           DeliveryState = "pending"
	StateSending           DeliveryState = "sending"
	StateDelivered         DeliveryState = "delivered"
	StateFailed            DeliveryState = "failed"
	StatePermanentlyFailed DeliveryState = "permanently_failed"
	StateSkipped           DeliveryState = "skipped"
)

func (s DeliveryState) Terminal() bool {
	return s == StateDelivered || s == StatePermanentlyFailed || s == StateSkipped
}

type Content struct {
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	ActionURL  string         `json:"action_url,omitempty"`
	ActionText string         `json:"action_text,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ChannelDelivery tracks one (recipient, channel) pair.
type ChannelDelivery struct {
	State             DeliveryState `json:"state"`
	Attempts          int           `json:"attempts"`
	LastError         string        `json:"last_error,omitempty"`
	ProviderMessageID string        `json:"provider_message_id,omitempty"`
	LatencyMs         int64         `json:"latency_ms,omitempty"`
	DeliveredAt       *time.Time    `json:"delivered_at,omitempty"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

type Recipient struct {
	UserID     string                       `json:"user_id"`
	Role       Role                         `json:"role"`
	Channels   []Channel                    `json:"channels"`
	Delivery   map[Channel]*ChannelDelivery `json:"delivery"`
	ReadAt     *time.Time                   `json:"read_at,omitempty"`
	ActionedAt *time.Time                   `json:"actioned_at,omitempty"`
}

// Analytics is a counter snapshot derived from recipient states. Counters are
// monotonically non-decreasing and may lag the states they summarize.
type Analytics struct {
	TotalRecipients int `json:"total_recipients"`
	Delivered       int `json:"delivered"`
	Read            int `json:"read"`
	Actioned        int `json:"actioned"`
	Bounced         int `json:"bounced"`
	Failed          int `json:"failed"`
	Skipped         int `json:"skipped"`
}

// Notification is one logical message fanned out to many recipients.
type Notification struct {
	ID           string           `json:"id"`
	Type         NotificationType `json:"type"`
	Category     string           `json:"category"`
	Priority     Priority         `json:"priority"`
	Content      Content          `json:"content"`
	Recipients   []Recipient      `json:"recipients"`
	Analytics    Analytics        `json:"analytics"`
	CreatedAt    time.Time        `json:"created_at"`
	ScheduledFor *time.Time       `json:"scheduled_for,omitempty"`
	ExpiresAt    *time.Time       `json:"expires_at,omitempty"`
}

// Recipient returns the recipient entry for userID, or nil.
func (n *Notification) Recipient(userID string) *Recipient {
	for i := range n.Recipients {
		if n.Recipients[i].UserID == userID {
			return &n.Recipients[i]
		}
	}
	return nil
}

// Settled reports whether every (recipient, channel) pair has reached a
// terminal state.
func (n *Notification) Settled() bool {
	for i := range n.Recipients {
		for _, cd := range n.Recipients[i].Delivery {
			if !cd.State.Terminal() {
				return false
			}
		}
	}
	return true
}

// ChannelResult is the outcome of one delivery attempt. Ephemeral: it is
// folded into the recipient state and the windowed analytics counters.
type ChannelResult struct {
	Channel           Channel `json:"channel"`
	Success           bool    `json:"success"`
	Permanent         bool    `json:"permanent,omitempty"`
	Error             string  `json:"error,omitempty"`
	ProviderMessageID string  `json:"provider_message_id,omitempty"`
	LatencyMs         int64   `json:"latency_ms"`
}
