package channel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/clock"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/events"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/logging"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/metrics"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/store"
)

// Manager drives delivery attempts for one queue item across the recipient's
// channel set. Attempts for different recipients run in parallel under a
// bounded pool; attempts for the same (notification, recipient, channel) are
// serialized so no address ever sees two in-flight sends of one message.
type Manager struct {
	adapters      map[domain.Channel]Adapter
	notifications store.NotificationStore
	analytics     store.AnalyticsStore
	prefs         store.PreferenceStore
	hub           *events.Hub
	collector     *metrics.Collector
	clock         clock.Clock

	fallbackOrder  []domain.Channel
	attemptTimeout time.Duration
	sem            chan struct{}
	limiters       map[domain.Channel]*rate.Limiter

	mu       sync.Mutex
	inflight map[string]*inflightLock
}

// inflightLock serializes sends for one (notification, recipient, channel).
// Entries are refcounted and dropped from the map once the last holder
// releases, so the map only ever holds in-progress pairs.
type inflightLock struct {
	mu   sync.Mutex
	refs int
}

type ManagerOptions struct {
	FallbackOrder  []domain.Channel
	AttemptTimeout time.Duration
	Workers        int
	RatePerSecond  map[domain.Channel]float64
}

func NewManager(
	adapters []Adapter,
	notifications store.NotificationStore,
	analytics store.AnalyticsStore,
	prefs store.PreferenceStore,
	hub *events.Hub,
	collector *metrics.Collector,
	clk clock.Clock,
	opts ManagerOptions,
) *Manager {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 10 * time.Second
	}

	byChannel := make(map[domain.Channel]Adapter, len(adapters))
	for _, a := range adapters {
		byChannel[a.Channel()] = a
	}

	limiters := make(map[domain.Channel]*rate.Limiter)
	for ch, perSecond := range opts.RatePerSecond {
		if perSecond > 0 {
			limiters[ch] = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}

	return &Manager{
		adapters:       byChannel,
		notifications:  notifications,
		analytics:      analytics,
		prefs:          prefs,
		hub:            hub,
		collector:      collector,
		clock:          clk,
		fallbackOrder:  opts.FallbackOrder,
		attemptTimeout: opts.AttemptTimeout,
		sem:            make(chan struct{}, opts.Workers),
		limiters:       limiters,
		inflight:       make(map[string]*inflightLock),
	}
}

// Deliver attempts every non-terminal channel in item.Channels and returns
// the per-channel results. Guaranteed-delivery priorities walk the fallback
// chain and stop at the first success; everything else fans out to all
// channels independently.
func (m *Manager) Deliver(ctx context.Context, n *domain.Notification, recipientID string, channels []domain.Channel) map[domain.Channel]domain.ChannelResult {
	ctx = logging.WithNotification(ctx, n.ID)
	ctx = logging.WithRecipient(ctx, recipientID)

	recipient := n.Recipient(recipientID)
	results := make(map[domain.Channel]domain.ChannelResult)
	if recipient == nil {
		logging.FromContext(ctx).Error("recipient missing from notification", slog.String("code", "DEL_ERROR"))
		return results
	}

	pending := make([]domain.Channel, 0, len(channels))
	for _, ch := range channels {
		cd := recipient.Delivery[ch]
		if cd != nil && cd.State.Terminal() {
			continue
		}
		pending = append(pending, ch)
	}
	if len(pending) == 0 {
		return results
	}

	if n.Priority.GuaranteedDelivery() {
		for _, ch := range orderByFallback(pending, m.fallbackOrder) {
			res := m.attempt(ctx, n, recipient, ch)
			results[ch] = res
			if res.Success {
				break
			}
		}
		return results
	}

	var wg sync.WaitGroup
	var resMu sync.Mutex
	for _, ch := range pending {
		wg.Add(1)
		go func(ch domain.Channel) {
			defer wg.Done()
			res := m.attempt(ctx, n, recipient, ch)
			resMu.Lock()
			results[ch] = res
			resMu.Unlock()
		}(ch)
	}
	wg.Wait()
	return results
}

func orderByFallback(channels []domain.Channel, order []domain.Channel) []domain.Channel {
	out := make([]domain.Channel, 0, len(channels))
	seen := make(map[domain.Channel]bool)
	for _, ch := range order {
		for _, c := range channels {
			if c == ch && !seen[c] {
				out = append(out, c)
				seen[c] = true
			}
		}
	}
	for _, c := range channels {
		if !seen[c] {
			out = append(out, c)
		}
	}
	return out
}

func (m *Manager) attempt(ctx context.Context, n *domain.Notification, recipient *domain.Recipient, ch domain.Channel) domain.ChannelResult {
	ctx = logging.WithChannel(ctx, string(ch))
	l := logging.FromContext(ctx)

	result := domain.ChannelResult{Channel: ch}

	adapter, ok := m.adapters[ch]
	if !ok {
		result.Error = "no adapter configured"
		result.Permanent = true
		m.settle(ctx, n, recipient, ch, result)
		return result
	}

	address, serr := m.resolveAddress(ctx, recipient, ch)
	if serr != nil {
		result.Error = serr.Message
		result.Permanent = serr.Permanent
		m.settle(ctx, n, recipient, ch, result)
		return result
	}

	// One in-flight send per (notification, recipient, channel).
	key := n.ID + "/" + recipient.UserID + "/" + string(ch)
	lock := m.acquire(key)
	defer m.release(key, lock)

	m.sem <- struct{}{}
	defer func() { <-m.sem }()

	if limiter := m.limiters[ch]; limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			result.Error = "rate limiter: " + err.Error()
			m.settle(ctx, n, recipient, ch, result)
			return result
		}
	}

	m.setState(ctx, n, recipient, ch, func(cd *domain.ChannelDelivery) {
		cd.State = domain.StateSending
		cd.Attempts++
	})

	attemptCtx, cancel := context.WithTimeout(ctx, m.attemptTimeout)
	start := m.clock.Now()
	res := adapter.Send(attemptCtx, Request{
		NotificationID: n.ID,
		RecipientID:    recipient.UserID,
		Address:        address,
		Priority:       n.Priority,
		Content:        n.Content,
	})
	cancel()
	result.LatencyMs = m.clock.Now().Sub(start).Milliseconds()

	if res.Success {
		result.Success = true
		result.ProviderMessageID = res.ProviderMessageID
		l.Info("delivery succeeded",
			slog.String("code", "DEL_OK"),
			slog.Int64("latency_ms", result.LatencyMs),
		)
	} else {
		if res.Err != nil {
			result.Error = res.Err.Message
			result.Permanent = res.Err.Permanent
		} else {
			result.Error = "send failed"
		}
		l.Warn("delivery attempt failed",
			slog.String("code", "DEL_FAIL"),
			slog.Bool("permanent", result.Permanent),
			slog.String("error", result.Error),
		)
	}

	m.settle(ctx, n, recipient, ch, result)
	return result
}

func (m *Manager) resolveAddress(ctx context.Context, recipient *domain.Recipient, ch domain.Channel) (string, *SendError) {
	if ch == domain.ChannelWebSocket {
		return recipient.UserID, nil
	}
	prefs, err := m.prefs.Get(ctx, recipient.UserID)
	if err != nil {
		return "", transientErr("preferences_unavailable", "load preferences: %v", err)
	}
	switch ch {
	case domain.ChannelEmail:
		if prefs.Email == "" {
			return "", permanentErr("invalid_address", "user %s has no email address", recipient.UserID)
		}
		return prefs.Email, nil
	case domain.ChannelSMS:
		if prefs.Phone == "" {
			return "", permanentErr("invalid_address", "user %s has no phone number", recipient.UserID)
		}
		return prefs.Phone, nil
	}
	return "", permanentErr("unknown_channel", "no address resolution for channel %s", ch)
}

// settle writes the attempt outcome into the recipient state, the windowed
// analytics counters, metrics, and the event stream.
func (m *Manager) settle(ctx context.Context, n *domain.Notification, recipient *domain.Recipient, ch domain.Channel, result domain.ChannelResult) {
	now := m.clock.Now()

	var state domain.DeliveryState
	var status string
	switch {
	case result.Success:
		state = domain.StateDelivered
		status = "delivered"
	case result.Permanent:
		state = domain.StatePermanentlyFailed
		status = "permanently_failed"
	default:
		state = domain.StateFailed
		status = "failed"
	}

	m.setState(ctx, n, recipient, ch, func(cd *domain.ChannelDelivery) {
		cd.State = state
		cd.LastError = result.Error
		cd.LatencyMs = result.LatencyMs
		if result.ProviderMessageID != "" {
			cd.ProviderMessageID = result.ProviderMessageID
		}
		if result.Success {
			cd.DeliveredAt = &now
		}
	})

	if err := m.analytics.RecordOutcome(ctx, ch, recipient.Role, status, result.LatencyMs, now); err != nil {
		logging.FromContext(ctx).Warn("failed to record analytics", slog.String("code", "DB_ERROR"), slog.Any("error", err))
	}
	if m.collector != nil {
		m.collector.DeliveryOutcome(ch, status, float64(result.LatencyMs)/1000)
	}
	if m.hub != nil {
		m.hub.Publish(events.Event{
			Kind:           events.KindDelivery,
			NotificationID: n.ID,
			UserID:         recipient.UserID,
			Channel:        ch,
			State:          state,
			Message:        result.Error,
			Attempt:        recipient.Delivery[ch].Attempts,
			Timestamp:      now,
		})
	}
}

func (m *Manager) setState(ctx context.Context, n *domain.Notification, recipient *domain.Recipient, ch domain.Channel, mutate func(*domain.ChannelDelivery)) {
	cd := recipient.Delivery[ch]
	if cd == nil {
		cd = &domain.ChannelDelivery{State: domain.StatePending}
		recipient.Delivery[ch] = cd
	}
	mutate(cd)
	cd.UpdatedAt = m.clock.Now()

	if err := m.notifications.UpdateChannelState(ctx, n.ID, recipient.UserID, ch, cd); err != nil {
		logging.FromContext(ctx).Error("failed to persist channel state",
			slog.String("code", "DB_ERROR"),
			slog.String("state", string(cd.State)),
			slog.Any("error", err),
		)
	}
}

func (m *Manager) acquire(key string) *inflightLock {
	m.mu.Lock()
	lock, ok := m.inflight[key]
	if !ok {
		lock = &inflightLock{}
		m.inflight[key] = lock
	}
	lock.refs++
	m.mu.Unlock()

	lock.mu.Lock()
	return lock
}

func (m *Manager) release(key string, lock *inflightLock) {
	lock.mu.Unlock()

	m.mu.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(m.inflight, key)
	}
	m.mu.Unlock()
}
