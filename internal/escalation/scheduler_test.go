package escalation

import (
	"testing"
	"time"
)

func TestSchedulerFiresInOrder(t *testing.T) {
	s := newScheduler()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.schedule("a1", 2, base.Add(10*time.Minute))
	s.schedule("a1", 1, base.Add(1*time.Minute))
	s.schedule("a2", 1, base.Add(5*time.Minute))

	fired := s.due(base.Add(6 * time.Minute))
	if len(fired) != 2 {
		t.Fatalf("expected 2 due timers, got %d", len(fired))
	}
	if fired[0].alertID != "a1" || fired[0].level != 1 {
		t.Errorf("expected a1 level 1 first, got %s level %d", fired[0].alertID, fired[0].level)
	}
	if fired[1].alertID != "a2" {
		t.Errorf("expected a2 second, got %s", fired[1].alertID)
	}
	if s.pending("a1") != 1 {
		t.Errorf("a1 should still have 1 pending timer, got %d", s.pending("a1"))
	}
}

func TestSchedulerCancelRemovesWholeSet(t *testing.T) {
	s := newScheduler()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.schedule("a1", 1, base.Add(1*time.Minute))
	s.schedule("a1", 2, base.Add(10*time.Minute))
	s.schedule("a1", 3, base.Add(30*time.Minute))
	s.schedule("a2", 1, base.Add(2*time.Minute))

	s.cancel("a1")

	if s.pending("a1") != 0 {
		t.Errorf("cancelled alert should have no pending timers, got %d", s.pending("a1"))
	}
	fired := s.due(base.Add(time.Hour))
	for _, e := range fired {
		if e.alertID == "a1" {
			t.Error("cancelled timer fired")
		}
	}
	if len(fired) != 1 || fired[0].alertID != "a2" {
		t.Errorf("expected only a2 to fire, got %v", fired)
	}
}

func TestSchedulerDueIsIdempotent(t *testing.T) {
	s := newScheduler()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.schedule("a1", 1, base)

	if got := len(s.due(base)); got != 1 {
		t.Fatalf("expected 1 timer, got %d", got)
	}
	if got := len(s.due(base.Add(time.Hour))); got != 0 {
		t.Errorf("fired timer returned again: %d", got)
	}
}
