package domain

import (
	"testing"
	"time"
)

func TestQuietHoursDisabled(t *testing.T) {
	q := QuietHours{Enabled: false, Start: "22:00", End: "07:00"}
	inside, err := q.Contains(time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inside {
		t.Error("disabled quiet hours should never match")
	}
}

func TestQuietHoursSameDayWindow(t *testing.T) {
	q := QuietHours{Enabled: true, Start: "13:00", End: "15:00"}

	tests := []struct {
		hour, min int
		want      bool
	}{
		{12, 59, false},
		{13, 0, true},
		{14, 30, true},
		{14, 59, true},
		{15, 0, false}, // end is exclusive
		{16, 0, false},
	}
	for _, tt := range tests {
		at := time.Date(2026, 3, 1, tt.hour, tt.min, 0, 0, time.UTC)
		inside, err := q.Contains(at)
		if err != nil {
			t.Fatalf("Contains(%02d:%02d): %v", tt.hour, tt.min, err)
		}
		if inside != tt.want {
			t.Errorf("Contains(%02d:%02d) = %v, want %v", tt.hour, tt.min, inside, tt.want)
		}
	}
}

func TestQuietHoursWrapsMidnight(t *testing.T) {
	q := QuietHours{Enabled: true, Start: "22:00", End: "07:00"}

	tests := []struct {
		hour int
		want bool
	}{
		{21, false},
		{22, true},
		{23, true},
		{0, true},
		{3, true},
		{6, true},
		{7, false},
		{12, false},
	}
	for _, tt := range tests {
		at := time.Date(2026, 3, 1, tt.hour, 30, 0, 0, time.UTC)
		inside, err := q.Contains(at)
		if err != nil {
			t.Fatalf("Contains(%02d:30): %v", tt.hour, err)
		}
		if inside != tt.want {
			t.Errorf("Contains(%02d:30) = %v, want %v", tt.hour, inside, tt.want)
		}
	}
}

func TestQuietHoursTimezone(t *testing.T) {
	// 02:00 UTC is 21:00 the previous evening in New York (EST).
	q := QuietHours{Enabled: true, Start: "20:00", End: "23:00", Timezone: "America/New_York"}
	inside, err := q.Contains(time.Date(2026, 1, 15, 2, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inside {
		t.Error("expected 02:00 UTC to fall inside 20:00-23:00 America/New_York")
	}
}

func TestQuietHoursBadConfig(t *testing.T) {
	for _, q := range []QuietHours{
		{Enabled: true, Start: "25:00", End: "07:00"},
		{Enabled: true, Start: "nonsense", End: "07:00"},
		{Enabled: true, Start: "22:00", End: "07:00", Timezone: "Mars/Olympus"},
	} {
		if _, err := q.Contains(time.Now()); err == nil {
			t.Errorf("expected error for %+v", q)
		}
	}
}

func TestChannelAndCategoryDefaults(t *testing.T) {
	p := &Preferences{UserID: "u1"}
	if !p.ChannelEnabled(ChannelEmail) {
		t.Error("channels with no entry should default to enabled")
	}
	if !p.CategoryEnabled("orders") {
		t.Error("categories with no entry should default to enabled")
	}

	p.Channels = map[Channel]bool{ChannelSMS: false}
	p.Categories = map[string]bool{"marketing": false}
	if p.ChannelEnabled(ChannelSMS) {
		t.Error("explicit false should disable the channel")
	}
	if !p.ChannelEnabled(ChannelEmail) {
		t.Error("unlisted channel should stay enabled")
	}
	if p.CategoryEnabled("marketing") {
		t.Error("explicit false should disable the category")
	}
}
