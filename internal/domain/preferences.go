package domain

import (
	"fmt"
	"time"
)

// QuietHours is a daily window during which non-guaranteed notifications are
// suppressed. Start and End use "HH:MM" in the user's timezone; a window may
// wrap midnight (e.g. 22:00–07:00).
type QuietHours struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone,omitempty"`
}

// Contains reports whether t falls inside the quiet window.
func (q QuietHours) Contains(t time.Time) (bool, error) {
	if !q.Enabled {
		return false, nil
	}
	loc := t.Location()
	if q.Timezone != "" {
		l, err := time.LoadLocation(q.Timezone)
		if err != nil {
			return false, fmt.Errorf("quiet hours timezone %q: %w", q.Timezone, err)
		}
		loc = l
	}
	local := t.In(loc)

	start, err := minutesOfDay(q.Start)
	if err != nil {
		return false, err
	}
	end, err := minutesOfDay(q.End)
	if err != nil {
		return false, err
	}
	now := local.Hour()*60 + local.Minute()

	if start <= end {
		return now >= start && now < end, nil
	}
	// Window wraps midnight.
	return now >= start || now < end, nil
}

func minutesOfDay(hhmm string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse quiet hours time %q: %w", hhmm, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("quiet hours time %q out of range", hhmm)
	}
	return h*60 + m, nil
}

// Preferences is a user's notification contact and opt-out configuration,
// owned by an external profile service and read here before enqueueing.
type Preferences struct {
	UserID     string           `json:"user_id"`
	Email      string           `json:"email,omitempty"`
	Phone      string           `json:"phone,omitempty"`
	Channels   map[Channel]bool `json:"channels,omitempty"`   // explicit false = opted out
	Categories map[string]bool  `json:"categories,omitempty"` // explicit false = opted out
	QuietHours QuietHours       `json:"quiet_hours"`
}

// ChannelEnabled reports whether the user accepts the channel. Channels with
// no explicit entry default to enabled.
func (p *Preferences) ChannelEnabled(c Channel) bool {
	if p.Channels == nil {
		return true
	}
	enabled, ok := p.Channels[c]
	return !ok || enabled
}

// CategoryEnabled reports whether the user accepts the category.
func (p *Preferences) CategoryEnabled(category string) bool {
	if p.Categories == nil {
		return true
	}
	enabled, ok := p.Categories[category]
	return !ok || enabled
}

// User is the slice of the directory the notifier needs: identity, role and
// reachable addresses for escalation fan-out.
type User struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}
