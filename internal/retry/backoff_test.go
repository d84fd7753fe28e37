package retry

import (
	"testing"
	"time"
)

func TestDefaultBackoff(t *testing.T) {
	b := DefaultBackoff()

	if b.BaseDelay != 1*time.Second {
		t.Errorf("expected BaseDelay 1s, got %v", b.BaseDelay)
	}
	if b.MaxDelay != 30*time.Second {
		t.Errorf("expected MaxDelay 30s, got %v", b.MaxDelay)
	}
	if b.Factor != 2.0 {
		t.Errorf("expected Factor 2.0, got %f", b.Factor)
	}
	if b.Jitter != 0.2 {
		t.Errorf("expected Jitter 0.2, got %f", b.Jitter)
	}
}

func TestExponentialGrowth(t *testing.T) {
	b := &Backoff{
		BaseDelay: 1 * time.Second,
		MaxDelay:  1 * time.Minute,
		Factor:    2.0,
		Jitter:    0, // deterministic
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
	}

	for _, tt := range tests {
		got := b.NextDelay(tt.attempt)
		if got != tt.want {
			t.Errorf("NextDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayCappedAtMax(t *testing.T) {
	b := &Backoff{
		BaseDelay: 1 * time.Second,
		MaxDelay:  30 * time.Second,
		Factor:    2.0,
		Jitter:    0,
	}

	for attempt := 5; attempt <= 20; attempt++ {
		if got := b.NextDelay(attempt); got > 30*time.Second {
			t.Errorf("NextDelay(%d) = %v, exceeds cap", attempt, got)
		}
	}
}

func TestJitterStaysInRange(t *testing.T) {
	b := &Backoff{
		BaseDelay: 4 * time.Second,
		MaxDelay:  1 * time.Minute,
		Factor:    2.0,
		Jitter:    0.2,
	}

	for i := 0; i < 100; i++ {
		got := b.NextDelay(0)
		min := time.Duration(float64(4*time.Second) * 0.8)
		max := time.Duration(float64(4*time.Second) * 1.2)
		if got < min || got > max {
			t.Errorf("NextDelay(0) = %v, outside [%v, %v]", got, min, max)
		}
	}
}

func TestMinimumFloor(t *testing.T) {
	b := &Backoff{
		BaseDelay: 1 * time.Millisecond,
		MaxDelay:  1 * time.Second,
		Factor:    2.0,
		Jitter:    0.5,
	}

	for i := 0; i < 50; i++ {
		if got := b.NextDelay(0); got < 100*time.Millisecond {
			t.Errorf("NextDelay(0) = %v, below 100ms floor", got)
		}
	}
}

func TestNegativeAttemptTreatedAsZero(t *testing.T) {
	b := &Backoff{BaseDelay: 1 * time.Second, MaxDelay: 30 * time.Second, Factor: 2.0}
	if got := b.NextDelay(-3); got != b.NextDelay(0) {
		t.Errorf("NextDelay(-3) = %v, want same as attempt 0", got)
	}
}
