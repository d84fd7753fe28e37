package escalation

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/cache"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/clock"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/events"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/metrics"
)

// mockAlertStore implements store.AlertStore for testing
type mockAlertStore struct {
	mu       sync.Mutex
	resolved []*domain.Alert
	purged   time.Time
}

func (s *mockAlertStore) SaveResolved(ctx context.Context, a *domain.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved = append(s.resolved, a)
	return nil
}

func (s *mockAlertStore) History(ctx context.Context, limit int) ([]*domain.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Alert, len(s.resolved))
	copy(out, s.resolved)
	return out, nil
}

func (s *mockAlertStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purged = cutoff
	return 0, nil
}

// mockNotifier implements Notifier for testing
type mockNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

type notifyCall struct {
	roles    []domain.Role
	channels []domain.Channel
	priority domain.Priority
	title    string
	exclude  []string
}

func (n *mockNotifier) NotifyRoles(ctx context.Context, roles []domain.Role, channels []domain.Channel, priority domain.Priority, content domain.Content, exclude ...string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{roles: roles, channels: channels, priority: priority, title: content.Title, exclude: exclude})
	return nil
}

// escalations returns only the level-firing notifications, not the
// ack/resolve operator notices.
func (n *mockNotifier) escalations() []notifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []notifyCall
	for _, c := range n.calls {
		if strings.HasPrefix(c.title, "[") {
			out = append(out, c)
		}
	}
	return out
}

type engineHarness struct {
	engine    *Engine
	clk       *clock.Manual
	history   *mockAlertStore
	notifier  *mockNotifier
	cooldowns *cache.MemoryCooldowns
}

func newEngineHarness() *engineHarness {
	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	history := &mockAlertStore{}
	notifier := &mockNotifier{}
	cooldowns := cache.NewMemoryCooldowns(clk)
	engine := NewEngine(cooldowns, history, notifier, events.NewHub(), metrics.NewCollector(), clk, EngineConfig{
		HistoryRetention: 7 * 24 * time.Hour,
		StaleThreshold:   2 * time.Hour,
		DefaultCooldown:  30 * time.Minute,
	})
	return &engineHarness{engine: engine, clk: clk, history: history, notifier: notifier, cooldowns: cooldowns}
}

func warningReq() AlertRequest {
	return AlertRequest{
		Type:     domain.AlertHighFailureRate,
		Severity: domain.SeverityWarning,
		Message:  "failure rate 20% above warning threshold",
		DedupKey: "overall",
		Payload:  map[string]any{"failure_rate": 0.2},
	}
}

func TestDuplicateAlertsMerge(t *testing.T) {
	h := newEngineHarness()
	ctx := context.Background()

	first, err := h.engine.ProcessAlert(ctx, warningReq())
	if err != nil {
		t.Fatal(err)
	}
	h.clk.Advance(time.Minute)
	second, err := h.engine.ProcessAlert(ctx, warningReq())
	if err != nil {
		t.Fatal(err)
	}

	if first.ID != second.ID {
		t.Errorf("same condition should map to one alert: %s vs %s", first.ID, second.ID)
	}
	if second.Occurrences != 2 {
		t.Errorf("expected 2 occurrences, got %d", second.Occurrences)
	}
	if !second.LastSeenAt.After(second.CreatedAt) {
		t.Error("merge should advance LastSeenAt")
	}
	if got := len(h.engine.ActiveAlerts()); got != 1 {
		t.Errorf("expected 1 active alert, got %d", got)
	}
}

func TestDifferentDedupKeysStaySeparate(t *testing.T) {
	h := newEngineHarness()
	ctx := context.Background()

	a := AlertRequest{Type: domain.AlertChannelDegraded, Severity: domain.SeverityCritical, DedupKey: "email", Message: "email failing"}
	b := AlertRequest{Type: domain.AlertChannelDegraded, Severity: domain.SeverityCritical, DedupKey: "sms", Message: "sms failing"}

	h.engine.ProcessAlert(ctx, a)
	h.engine.ProcessAlert(ctx, b)

	if got := len(h.engine.ActiveAlerts()); got != 2 {
		t.Errorf("per-channel conditions should not collapse, got %d alerts", got)
	}
}

func TestEscalationLadder(t *testing.T) {
	h := newEngineHarness()
	ctx := context.Background()

	// high_failure_rate ladder: level 1 at 0, level 2 at +10m.
	alert, err := h.engine.ProcessAlert(ctx, warningReq())
	if err != nil {
		t.Fatal(err)
	}

	if fired := h.engine.Tick(ctx); fired != 1 {
		t.Fatalf("expected level 1 to fire immediately, fired %d", fired)
	}
	if got := len(h.notifier.escalations()); got != 1 {
		t.Fatalf("expected 1 escalation notification, got %d", got)
	}

	h.clk.Advance(5 * time.Minute)
	if fired := h.engine.Tick(ctx); fired != 0 {
		t.Errorf("level 2 fired too early: %d", fired)
	}

	h.clk.Advance(5 * time.Minute)
	if fired := h.engine.Tick(ctx); fired != 1 {
		t.Errorf("expected level 2 at +10m, fired %d", fired)
	}

	active := h.engine.ActiveAlerts()
	if len(active) != 1 || active[0].EscalationLevel != 2 {
		t.Fatalf("expected escalation level 2, got %+v", active)
	}
	_ = alert
}

func TestAcknowledgeStopsEscalation(t *testing.T) {
	h := newEngineHarness()
	ctx := context.Background()

	alert, _ := h.engine.ProcessAlert(ctx, warningReq())
	h.engine.Tick(ctx) // level 1

	acked, err := h.engine.Acknowledge(ctx, alert.ID, "carol", "looking into it")
	if err != nil {
		t.Fatal(err)
	}
	if !acked.Acknowledged || acked.AcknowledgedBy != "carol" {
		t.Errorf("ack fields not set: %+v", acked)
	}

	before := len(h.notifier.escalations())
	h.clk.Advance(time.Hour)
	if fired := h.engine.Tick(ctx); fired != 0 {
		t.Errorf("acknowledged alert escalated: %d", fired)
	}
	if got := len(h.notifier.escalations()); got != before {
		t.Errorf("escalation notifications sent after ack: %d -> %d", before, got)
	}
	if acked.EscalationLevel != 1 {
		t.Errorf("escalation level should freeze at 1, got %d", acked.EscalationLevel)
	}
}

func TestOperatorNoticesExcludeActor(t *testing.T) {
	h := newEngineHarness()
	ctx := context.Background()

	alert, _ := h.engine.ProcessAlert(ctx, warningReq())
	h.engine.Acknowledge(ctx, alert.ID, "carol", "on it")
	h.engine.Resolve(ctx, alert.ID, "dave", "fixed")

	h.notifier.mu.Lock()
	defer h.notifier.mu.Unlock()
	var notices []notifyCall
	for _, c := range h.notifier.calls {
		if !strings.HasPrefix(c.title, "[") {
			notices = append(notices, c)
		}
	}
	if len(notices) != 2 {
		t.Fatalf("expected ack and resolve notices, got %d", len(notices))
	}
	if len(notices[0].exclude) != 1 || notices[0].exclude[0] != "carol" {
		t.Errorf("ack notice should exclude the acknowledger, got %v", notices[0].exclude)
	}
	if len(notices[1].exclude) != 1 || notices[1].exclude[0] != "dave" {
		t.Errorf("resolve notice should exclude the resolver, got %v", notices[1].exclude)
	}
}

func TestAcknowledgeErrors(t *testing.T) {
	h := newEngineHarness()
	ctx := context.Background()

	if _, err := h.engine.Acknowledge(ctx, "missing", "carol", ""); err != ErrAlertNotFound {
		t.Errorf("expected ErrAlertNotFound, got %v", err)
	}

	alert, _ := h.engine.ProcessAlert(ctx, warningReq())
	h.engine.Acknowledge(ctx, alert.ID, "carol", "")
	if _, err := h.engine.Acknowledge(ctx, alert.ID, "dave", ""); err != ErrAlreadyAcknowledged {
		t.Errorf("expected ErrAlreadyAcknowledged, got %v", err)
	}
}

func TestResolveMovesToHistoryAndStartsCooldown(t *testing.T) {
	h := newEngineHarness()
	ctx := context.Background()

	alert, _ := h.engine.ProcessAlert(ctx, warningReq())
	resolved, err := h.engine.Resolve(ctx, alert.ID, "carol", "provider recovered")
	if err != nil {
		t.Fatal(err)
	}
	if !resolved.Resolved || resolved.ResolvedBy != "carol" {
		t.Errorf("resolve fields not set: %+v", resolved)
	}
	if got := len(h.engine.ActiveAlerts()); got != 0 {
		t.Errorf("resolved alert still active: %d", got)
	}

	h.history.mu.Lock()
	saved := len(h.history.resolved)
	h.history.mu.Unlock()
	if saved != 1 {
		t.Errorf("expected 1 history record, got %d", saved)
	}

	// The same condition is now suppressed by cooldown.
	suppressed, err := h.engine.ProcessAlert(ctx, warningReq())
	if err != nil {
		t.Fatal(err)
	}
	if suppressed != nil {
		t.Error("alert during cooldown should be dropped")
	}

	// And accepted again once the cooldown lapses.
	h.clk.Advance(31 * time.Minute)
	again, err := h.engine.ProcessAlert(ctx, warningReq())
	if err != nil {
		t.Fatal(err)
	}
	if again == nil {
		t.Error("alert after cooldown should be accepted")
	}
}

func TestResolveUnknownAlert(t *testing.T) {
	h := newEngineHarness()
	if _, err := h.engine.Resolve(context.Background(), "missing", "carol", ""); err != ErrAlertNotFound {
		t.Errorf("expected ErrAlertNotFound, got %v", err)
	}
}

func TestResolveTwiceReportsAlreadyResolved(t *testing.T) {
	h := newEngineHarness()
	ctx := context.Background()

	alert, _ := h.engine.ProcessAlert(ctx, warningReq())
	if _, err := h.engine.Resolve(ctx, alert.ID, "carol", "fixed"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.Resolve(ctx, alert.ID, "dave", "me too"); err != ErrAlreadyResolved {
		t.Errorf("expected ErrAlreadyResolved, got %v", err)
	}

	// Once the condition recurs after cooldown, the new alert resolves
	// normally under the same ID.
	h.clk.Advance(31 * time.Minute)
	again, err := h.engine.ProcessAlert(ctx, warningReq())
	if err != nil || again == nil {
		t.Fatalf("expected re-raise after cooldown, got %v %v", again, err)
	}
	if _, err := h.engine.Resolve(ctx, again.ID, "carol", "fixed again"); err != nil {
		t.Errorf("re-raised alert should resolve cleanly, got %v", err)
	}
}

func TestResolveCancelsPendingEscalations(t *testing.T) {
	h := newEngineHarness()
	ctx := context.Background()

	alert, _ := h.engine.ProcessAlert(ctx, warningReq())
	h.engine.Resolve(ctx, alert.ID, "carol", "fixed")

	h.clk.Advance(time.Hour)
	if fired := h.engine.Tick(ctx); fired != 0 {
		t.Errorf("resolved alert escalated: %d", fired)
	}
}

func TestCriticalSeverityUsesCriticalPriority(t *testing.T) {
	h := newEngineHarness()
	ctx := context.Background()

	h.engine.ProcessAlert(ctx, AlertRequest{
		Type:     domain.AlertCriticalFailureRate,
		Severity: domain.SeverityCritical,
		Message:  "failure rate critical",
		DedupKey: "overall",
	})
	h.engine.Tick(ctx)

	esc := h.notifier.escalations()
	if len(esc) != 1 {
		t.Fatalf("expected 1 escalation, got %d", len(esc))
	}
	if esc[0].priority != domain.PriorityCritical {
		t.Errorf("critical alerts should notify at critical priority, got %s", esc[0].priority)
	}
}

func TestHousekeepFlagsStaleAlerts(t *testing.T) {
	h := newEngineHarness()
	ctx := context.Background()

	hub := events.NewHub()
	h.engine.hub = hub
	sub := &events.Subscriber{ID: "test", Kind: events.KindAlert, Events: make(chan events.Event, 10)}
	hub.Subscribe(sub)

	alert, _ := h.engine.ProcessAlert(ctx, warningReq())
	h.clk.Advance(3 * time.Hour)
	h.engine.Housekeep(ctx)

	found := false
	for len(sub.Events) > 0 {
		ev := <-sub.Events
		if ev.AlertID == alert.ID && strings.Contains(ev.Message, "stale") {
			found = true
		}
	}
	if !found {
		t.Error("expected a stale signal for the unacknowledged alert")
	}

	// The signal fires once, not on every pass.
	h.engine.Housekeep(ctx)
	for len(sub.Events) > 0 {
		ev := <-sub.Events
		if strings.Contains(ev.Message, "stale") {
			t.Error("stale signal repeated")
		}
	}

	h.history.mu.Lock()
	purgeCutoff := h.history.purged
	h.history.mu.Unlock()
	want := h.clk.Now().Add(-7 * 24 * time.Hour)
	if !purgeCutoff.Equal(want) {
		t.Errorf("expected purge cutoff %v, got %v", want, purgeCutoff)
	}
}

func TestStatistics(t *testing.T) {
	h := newEngineHarness()
	ctx := context.Background()

	a, _ := h.engine.ProcessAlert(ctx, warningReq())
	h.engine.ProcessAlert(ctx, warningReq()) // merge
	h.engine.ProcessAlert(ctx, AlertRequest{Type: domain.AlertHighLatency, Severity: domain.SeverityWarning, DedupKey: "overall", Message: "slow"})
	h.clk.Advance(10 * time.Minute)
	h.engine.Resolve(ctx, a.ID, "carol", "fixed")

	s := h.engine.Statistics()
	if s.TotalRaised != 2 {
		t.Errorf("expected 2 raised, got %d", s.TotalRaised)
	}
	if s.TotalMerged != 1 {
		t.Errorf("expected 1 merged, got %d", s.TotalMerged)
	}
	if s.TotalResolved != 1 {
		t.Errorf("expected 1 resolved, got %d", s.TotalResolved)
	}
	if s.Active != 1 {
		t.Errorf("expected 1 active, got %d", s.Active)
	}
	if s.AvgResolveTime != 10*time.Minute {
		t.Errorf("expected avg resolve time 10m, got %v", s.AvgResolveTime)
	}
}

func TestSetRuleValidation(t *testing.T) {
	h := newEngineHarness()

	bad := []domain.EscalationRule{
		{},
		{Steps: []domain.EscalationStep{{Delay: -time.Minute, Roles: []domain.Role{domain.RoleAdmin}, Channels: []domain.Channel{domain.ChannelEmail}}}},
		{Steps: []domain.EscalationStep{{Delay: 0, Channels: []domain.Channel{domain.ChannelEmail}}}},
		{Steps: []domain.EscalationStep{{Delay: 0, Roles: []domain.Role{domain.RoleAdmin}}}},
		{Steps: []domain.EscalationStep{
			{Delay: 10 * time.Minute, Roles: []domain.Role{domain.RoleAdmin}, Channels: []domain.Channel{domain.ChannelEmail}},
			{Delay: 5 * time.Minute, Roles: []domain.Role{domain.RoleAdmin}, Channels: []domain.Channel{domain.ChannelEmail}},
		}},
	}
	for i, rule := range bad {
		if err := h.engine.SetRule(domain.AlertHighLatency, rule); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}

	good := domain.EscalationRule{
		Steps: []domain.EscalationStep{
			{Delay: 0, Roles: []domain.Role{domain.RoleAdmin}, Channels: []domain.Channel{domain.ChannelWebSocket}},
		},
		Cooldown: 10 * time.Minute,
	}
	if err := h.engine.SetRule(domain.AlertHighLatency, good); err != nil {
		t.Errorf("valid rule rejected: %v", err)
	}
	if got := h.engine.Rules()[domain.AlertHighLatency]; len(got.Steps) != 1 {
		t.Error("rule update not visible")
	}
}
