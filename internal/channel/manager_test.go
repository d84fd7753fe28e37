package channel

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/clock"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/store"
)

// mockAdapter implements Adapter for testing
type mockAdapter struct {
	channel domain.Channel
	result  Result

	mu    sync.Mutex
	calls int
}

func (a *mockAdapter) Channel() domain.Channel { return a.channel }

func (a *mockAdapter) Send(ctx context.Context, req Request) Result {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	return a.result
}

func (a *mockAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// mockStateStore implements store.NotificationStore for testing
type mockStateStore struct {
	mu     sync.Mutex
	states map[string]domain.DeliveryState // "userID/channel" -> last written state
}

func newMockStateStore() *mockStateStore {
	return &mockStateStore{states: make(map[string]domain.DeliveryState)}
}

func (s *mockStateStore) Create(ctx context.Context, n *domain.Notification) error { return nil }
func (s *mockStateStore) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	return nil, nil
}

func (s *mockStateStore) UpdateChannelState(ctx context.Context, notificationID, recipientID string, ch domain.Channel, cd *domain.ChannelDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[recipientID+"/"+string(ch)] = cd.State
	return nil
}

func (s *mockStateStore) MarkRead(ctx context.Context, notificationID, recipientID string, at time.Time) error {
	return nil
}

func (s *mockStateStore) MarkActioned(ctx context.Context, notificationID, recipientID string, at time.Time) error {
	return nil
}

func (s *mockStateStore) FindDue(ctx context.Context, now time.Time, limit int) ([]*domain.Notification, error) {
	return nil, nil
}

func (s *mockStateStore) ClearScheduled(ctx context.Context, id string) error { return nil }

func (s *mockStateStore) FindStuck(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Notification, error) {
	return nil, nil
}

func (s *mockStateStore) FindExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Notification, error) {
	return nil, nil
}

func (s *mockStateStore) LookupProviderMessage(ctx context.Context, ch domain.Channel, providerMessageID string) (string, string, error) {
	return "", "", nil
}

// mockAnalytics implements store.AnalyticsStore for testing
type mockAnalytics struct {
	mu       sync.Mutex
	outcomes []string // "channel/status"
}

func (a *mockAnalytics) RecordOutcome(ctx context.Context, ch domain.Channel, role domain.Role, status string, latencyMs int64, at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outcomes = append(a.outcomes, string(ch)+"/"+status)
	return nil
}

func (a *mockAnalytics) RecordEngagement(ctx context.Context, kind string, at time.Time) error {
	return nil
}

func (a *mockAnalytics) Window(ctx context.Context, from, to time.Time) (*store.WindowStats, error) {
	return nil, nil
}

func (a *mockAnalytics) Trend(ctx context.Context, from, to time.Time) ([]store.TrendPoint, error) {
	return nil, nil
}

func (a *mockAnalytics) countOutcome(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, o := range a.outcomes {
		if o == key {
			n++
		}
	}
	return n
}

// mockPrefs implements store.PreferenceStore for testing
type mockPrefs struct {
	prefs map[string]*domain.Preferences
}

func (p *mockPrefs) Get(ctx context.Context, userID string) (*domain.Preferences, error) {
	if pr, ok := p.prefs[userID]; ok {
		return pr, nil
	}
	return &domain.Preferences{UserID: userID, Email: userID + "@example.com", Phone: "+15550001111"}, nil
}

func deliveryNotification(priority domain.Priority, channels ...domain.Channel) *domain.Notification {
	r := domain.Recipient{
		UserID:   "u1",
		Role:     domain.RolePatient,
		Channels: channels,
		Delivery: make(map[domain.Channel]*domain.ChannelDelivery),
	}
	for _, ch := range channels {
		r.Delivery[ch] = &domain.ChannelDelivery{State: domain.StatePending}
	}
	return &domain.Notification{
		ID:         "n1",
		Type:       domain.TypeOrderStatusChanged,
		Priority:   priority,
		Content:    domain.Content{Title: "Order update", Message: "Your order shipped"},
		Recipients: []domain.Recipient{r},
	}
}

func newTestManager(adapters []Adapter, states *mockStateStore, analytics *mockAnalytics) *Manager {
	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewManager(adapters, states, analytics, &mockPrefs{}, nil, nil, clk, ManagerOptions{
		FallbackOrder: []domain.Channel{domain.ChannelWebSocket, domain.ChannelEmail, domain.ChannelSMS},
		Workers:       4,
	})
}

func TestDeliverFanOut(t *testing.T) {
	email := &mockAdapter{channel: domain.ChannelEmail, result: Result{Success: true, ProviderMessageID: "msg-1"}}
	sms := &mockAdapter{channel: domain.ChannelSMS, result: Result{Success: true, ProviderMessageID: "msg-2"}}
	states := newMockStateStore()
	analytics := &mockAnalytics{}
	m := newTestManager([]Adapter{email, sms}, states, analytics)

	n := deliveryNotification(domain.PriorityMedium, domain.ChannelEmail, domain.ChannelSMS)
	results := m.Deliver(context.Background(), n, "u1", []domain.Channel{domain.ChannelEmail, domain.ChannelSMS})

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, ch := range []domain.Channel{domain.ChannelEmail, domain.ChannelSMS} {
		if !results[ch].Success {
			t.Errorf("expected %s to succeed: %s", ch, results[ch].Error)
		}
		if n.Recipients[0].Delivery[ch].State != domain.StateDelivered {
			t.Errorf("expected %s delivered, got %s", ch, n.Recipients[0].Delivery[ch].State)
		}
	}
	if email.callCount() != 1 || sms.callCount() != 1 {
		t.Error("each adapter should be called exactly once")
	}
	if analytics.countOutcome("email/delivered") != 1 {
		t.Error("email delivery not recorded")
	}
}

func TestGuaranteedDeliveryStopsAtFirstSuccess(t *testing.T) {
	wsAd := &mockAdapter{channel: domain.ChannelWebSocket, result: Result{
		Err: transientErr("recipient_offline", "no active connection"),
	}}
	email := &mockAdapter{channel: domain.ChannelEmail, result: Result{Success: true, ProviderMessageID: "msg-1"}}
	sms := &mockAdapter{channel: domain.ChannelSMS, result: Result{Success: true}}
	m := newTestManager([]Adapter{wsAd, email, sms}, newMockStateStore(), &mockAnalytics{})

	n := deliveryNotification(domain.PriorityCritical, domain.ChannelWebSocket, domain.ChannelEmail, domain.ChannelSMS)
	results := m.Deliver(context.Background(), n, "u1",
		[]domain.Channel{domain.ChannelSMS, domain.ChannelEmail, domain.ChannelWebSocket})

	// Fallback order: websocket first, then email succeeds, sms never tried.
	if results[domain.ChannelWebSocket].Success {
		t.Error("websocket should have failed")
	}
	if !results[domain.ChannelEmail].Success {
		t.Error("email should have succeeded")
	}
	if _, tried := results[domain.ChannelSMS]; tried {
		t.Error("sms should not be attempted after a success")
	}
	if sms.callCount() != 0 {
		t.Error("sms adapter should not be called")
	}
}

func TestPermanentFailureState(t *testing.T) {
	email := &mockAdapter{channel: domain.ChannelEmail, result: Result{
		Err: permanentErr("invalid_address", "mailbox does not exist"),
	}}
	states := newMockStateStore()
	analytics := &mockAnalytics{}
	m := newTestManager([]Adapter{email}, states, analytics)

	n := deliveryNotification(domain.PriorityMedium, domain.ChannelEmail)
	results := m.Deliver(context.Background(), n, "u1", []domain.Channel{domain.ChannelEmail})

	res := results[domain.ChannelEmail]
	if res.Success || !res.Permanent {
		t.Fatalf("expected permanent failure, got %+v", res)
	}
	if n.Recipients[0].Delivery[domain.ChannelEmail].State != domain.StatePermanentlyFailed {
		t.Error("expected permanently_failed state")
	}
	if analytics.countOutcome("email/permanently_failed") != 1 {
		t.Error("permanent failure not recorded")
	}
}

func TestTerminalChannelsSkipped(t *testing.T) {
	email := &mockAdapter{channel: domain.ChannelEmail, result: Result{Success: true}}
	m := newTestManager([]Adapter{email}, newMockStateStore(), &mockAnalytics{})

	n := deliveryNotification(domain.PriorityMedium, domain.ChannelEmail)
	n.Recipients[0].Delivery[domain.ChannelEmail].State = domain.StateDelivered

	results := m.Deliver(context.Background(), n, "u1", []domain.Channel{domain.ChannelEmail})
	if len(results) != 0 {
		t.Errorf("terminal channel should not be re-attempted, got %d results", len(results))
	}
	if email.callCount() != 0 {
		t.Error("adapter should not be called for a delivered channel")
	}
}

func TestMissingAdapterIsPermanent(t *testing.T) {
	m := newTestManager(nil, newMockStateStore(), &mockAnalytics{})

	n := deliveryNotification(domain.PriorityMedium, domain.ChannelEmail)
	results := m.Deliver(context.Background(), n, "u1", []domain.Channel{domain.ChannelEmail})

	res := results[domain.ChannelEmail]
	if res.Success || !res.Permanent {
		t.Errorf("missing adapter should be a permanent failure, got %+v", res)
	}
}

func TestMissingAddressIsPermanent(t *testing.T) {
	email := &mockAdapter{channel: domain.ChannelEmail, result: Result{Success: true}}
	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	prefs := &mockPrefs{prefs: map[string]*domain.Preferences{
		"u1": {UserID: "u1"}, // no email address on file
	}}
	m := NewManager([]Adapter{email}, newMockStateStore(), &mockAnalytics{}, prefs, nil, nil, clk, ManagerOptions{Workers: 2})

	n := deliveryNotification(domain.PriorityMedium, domain.ChannelEmail)
	results := m.Deliver(context.Background(), n, "u1", []domain.Channel{domain.ChannelEmail})

	res := results[domain.ChannelEmail]
	if res.Success || !res.Permanent {
		t.Errorf("missing address should be a permanent failure, got %+v", res)
	}
	if email.callCount() != 0 {
		t.Error("adapter should not be called without an address")
	}
}

func TestInflightLocksDroppedAfterDelivery(t *testing.T) {
	email := &mockAdapter{channel: domain.ChannelEmail, result: Result{Success: true}}
	m := newTestManager([]Adapter{email}, newMockStateStore(), &mockAnalytics{})

	for i := 0; i < 50; i++ {
		n := deliveryNotification(domain.PriorityMedium, domain.ChannelEmail)
		n.ID = fmt.Sprintf("n-%d", i)
		m.Deliver(context.Background(), n, "u1", []domain.Channel{domain.ChannelEmail})
	}

	m.mu.Lock()
	held := len(m.inflight)
	m.mu.Unlock()
	if held != 0 {
		t.Errorf("lock map should be empty once deliveries settle, holds %d entries", held)
	}
}

func TestAttemptCountsIncrement(t *testing.T) {
	email := &mockAdapter{channel: domain.ChannelEmail, result: Result{
		Err: transientErr("provider_error", "upstream 503"),
	}}
	m := newTestManager([]Adapter{email}, newMockStateStore(), &mockAnalytics{})

	n := deliveryNotification(domain.PriorityMedium, domain.ChannelEmail)
	m.Deliver(context.Background(), n, "u1", []domain.Channel{domain.ChannelEmail})
	m.Deliver(context.Background(), n, "u1", []domain.Channel{domain.ChannelEmail})

	if got := n.Recipients[0].Delivery[domain.ChannelEmail].Attempts; got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}
