package escalation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/cache"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/clock"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/events"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/logging"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/metrics"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/store"
)

var (
	ErrAlertNotFound       = errors.New("alert not found")
	ErrAlreadyAcknowledged = errors.New("alert already acknowledged")
	ErrAlreadyResolved     = errors.New("alert already resolved")
)

// AlertRequest is a raw problem report from the monitor or an operator.
// DedupKey is the stable identity of the condition (a channel name, "overall");
// changing measurements belong in Payload so repeats collapse onto one alert.
type AlertRequest struct {
	Type     domain.AlertType
	Severity domain.AlertSeverity
	Message  string
	DedupKey string
	Payload  map[string]any
}

// Notifier fans an alert notification out to every user holding one of the
// given roles, minus any excluded user IDs.
type Notifier interface {
	NotifyRoles(ctx context.Context, roles []domain.Role, channels []domain.Channel, priority domain.Priority, content domain.Content, exclude ...string) error
}

// Statistics is a point-in-time summary of engine activity since start.
type Statistics struct {
	Active            int           `json:"active"`
	Unacknowledged    int           `json:"unacknowledged"`
	TotalRaised       int           `json:"total_raised"`
	TotalMerged       int           `json:"total_merged"`
	TotalSuppressed   int           `json:"total_suppressed"`
	TotalAcknowledged int           `json:"total_acknowledged"`
	TotalResolved     int           `json:"total_resolved"`
	TotalEscalations  int           `json:"total_escalations"`
	AvgAckTime        time.Duration `json:"avg_ack_time"`
	AvgResolveTime    time.Duration `json:"avg_resolve_time"`
}

type EngineConfig struct {
	HistoryRetention time.Duration
	StaleThreshold   time.Duration
	DefaultCooldown  time.Duration
}

// Engine owns the full alert lifecycle: dedup on arrival, scheduled
// escalation through each rule's ladder, acknowledge and resolve, cooldown
// suppression after resolution and history retention.
type Engine struct {
	mu       sync.Mutex
	active   map[string]*domain.Alert
	rules    map[domain.AlertType]domain.EscalationRule
	stale    map[string]bool
	resolved map[string]time.Time // closed alert IDs, pruned on housekeeping

	sched     *scheduler
	cooldowns cache.CooldownStore
	history   store.AlertStore
	notifier  Notifier
	hub       *events.Hub
	collector *metrics.Collector
	clock     clock.Clock
	cfg       EngineConfig

	stats struct {
		raised, merged, suppressed int
		acked, resolved, escalated int
		ackTime, resolveTime       time.Duration
	}
}

func NewEngine(cooldowns cache.CooldownStore, history store.AlertStore, notifier Notifier, hub *events.Hub, collector *metrics.Collector, clk clock.Clock, cfg EngineConfig) *Engine {
	return &Engine{
		active:    make(map[string]*domain.Alert),
		rules:     defaultRules(),
		stale:     make(map[string]bool),
		resolved:  make(map[string]time.Time),
		sched:     newScheduler(),
		cooldowns: cooldowns,
		history:   history,
		notifier:  notifier,
		hub:       hub,
		collector: collector,
		clock:     clk,
		cfg:       cfg,
	}
}

// alertID derives a stable identifier from the condition's identity so the
// same condition reported twice maps to the same alert.
func alertID(req AlertRequest) string {
	h := sha256.Sum256([]byte(string(req.Type) + "|" + string(req.Severity) + "|" + req.DedupKey))
	return hex.EncodeToString(h[:])[:16]
}

// ProcessAlert ingests one problem report. A report matching an active alert
// merges into it; a report for a type still in post-resolution cooldown is
// dropped. Returns the active alert, or nil when suppressed.
func (e *Engine) ProcessAlert(ctx context.Context, req AlertRequest) (*domain.Alert, error) {
	id := alertID(req)
	log := logging.FromContext(logging.WithAlert(ctx, id))
	now := e.clock.Now()

	e.mu.Lock()
	if existing, ok := e.active[id]; ok {
		existing.Occurrences++
		existing.LastSeenAt = now
		if req.Payload != nil {
			existing.Payload = req.Payload
		}
		e.stats.merged++
		e.mu.Unlock()
		log.Debug("alert merged into active occurrence",
			slog.String("code", "ESC_MERGE"),
			slog.String("alert_type", string(req.Type)),
			slog.Int("occurrences", existing.Occurrences))
		return existing, nil
	}
	e.mu.Unlock()

	cooling, err := e.cooldowns.Active(ctx, req.Type)
	if err != nil {
		log.Warn("cooldown lookup failed, treating as inactive",
			slog.String("code", "ESC_COOLDOWN_ERR"), slog.Any("error", err))
	}
	if cooling {
		e.mu.Lock()
		e.stats.suppressed++
		e.mu.Unlock()
		log.Info("alert suppressed by cooldown",
			slog.String("code", "ESC_COOLDOWN"),
			slog.String("alert_type", string(req.Type)))
		return nil, nil
	}

	alert := &domain.Alert{
		ID:          id,
		Type:        req.Type,
		Severity:    req.Severity,
		Message:     req.Message,
		Payload:     req.Payload,
		CreatedAt:   now,
		LastSeenAt:  now,
		Occurrences: 1,
	}

	rule := e.ruleFor(req.Type)

	e.mu.Lock()
	// Raced with a concurrent report for the same condition.
	if existing, ok := e.active[id]; ok {
		existing.Occurrences++
		existing.LastSeenAt = now
		e.stats.merged++
		e.mu.Unlock()
		return existing, nil
	}
	e.active[id] = alert
	// The same condition may recur after cooldown under the same ID.
	delete(e.resolved, id)
	e.stats.raised++
	nActive := len(e.active)
	e.mu.Unlock()

	for i, step := range rule.Steps {
		e.sched.schedule(id, i+1, now.Add(step.Delay))
	}

	e.collector.SetActiveAlerts(nActive)
	e.hub.Publish(events.Event{
		Kind:      events.KindAlert,
		AlertID:   id,
		AlertType: alert.Type,
		Message:   alert.Message,
		Timestamp: now,
	})
	log.Info("alert raised",
		slog.String("code", "ESC_RAISE"),
		slog.String("alert_type", string(req.Type)),
		slog.String("severity", string(req.Severity)),
		slog.Int("steps", len(rule.Steps)))
	return alert, nil
}

// Acknowledge marks an alert as seen by an operator and cancels every
// pending escalation for it.
func (e *Engine) Acknowledge(ctx context.Context, id, who, notes string) (*domain.Alert, error) {
	now := e.clock.Now()

	e.mu.Lock()
	alert, ok := e.active[id]
	if !ok {
		e.mu.Unlock()
		return nil, ErrAlertNotFound
	}
	if alert.Acknowledged {
		e.mu.Unlock()
		return nil, ErrAlreadyAcknowledged
	}
	alert.Acknowledged = true
	alert.AcknowledgedBy = who
	alert.AckNotes = notes
	alert.AcknowledgedAt = &now
	e.stats.acked++
	e.stats.ackTime += now.Sub(alert.CreatedAt)
	e.mu.Unlock()

	e.sched.cancel(id)

	log := logging.FromContext(logging.WithAlert(ctx, id))
	log.Info("alert acknowledged",
		slog.String("code", "ESC_ACK"),
		slog.String("by", who))

	e.hub.Publish(events.Event{
		Kind:      events.KindAlert,
		AlertID:   id,
		AlertType: alert.Type,
		Message:   fmt.Sprintf("acknowledged by %s", who),
		Timestamp: now,
	})
	e.notifyOps(ctx, alert, fmt.Sprintf("Alert %s acknowledged by %s", alert.Type, who), notes, who)
	return alert, nil
}

// Resolve closes an alert: pending escalations are cancelled, the alert
// moves to history and its type enters cooldown.
func (e *Engine) Resolve(ctx context.Context, id, who, resolution string) (*domain.Alert, error) {
	now := e.clock.Now()

	e.mu.Lock()
	alert, ok := e.active[id]
	if !ok {
		_, was := e.resolved[id]
		e.mu.Unlock()
		if was {
			return nil, ErrAlreadyResolved
		}
		return nil, ErrAlertNotFound
	}
	alert.Resolved = true
	alert.ResolvedBy = who
	alert.Resolution = resolution
	alert.ResolvedAt = &now
	delete(e.active, id)
	delete(e.stale, id)
	e.resolved[id] = now
	e.stats.resolved++
	e.stats.resolveTime += now.Sub(alert.CreatedAt)
	nActive := len(e.active)
	e.mu.Unlock()

	e.sched.cancel(id)

	log := logging.FromContext(logging.WithAlert(ctx, id))
	if err := e.history.SaveResolved(ctx, alert); err != nil {
		log.Error("failed to persist resolved alert",
			slog.String("code", "ESC_HISTORY_ERR"), slog.Any("error", err))
	}

	cooldown := e.ruleFor(alert.Type).Cooldown
	if cooldown <= 0 {
		cooldown = e.cfg.DefaultCooldown
	}
	if err := e.cooldowns.Set(ctx, alert.Type, cooldown); err != nil {
		log.Warn("failed to start cooldown",
			slog.String("code", "ESC_COOLDOWN_ERR"), slog.Any("error", err))
	}

	e.collector.SetActiveAlerts(nActive)
	e.hub.Publish(events.Event{
		Kind:      events.KindAlert,
		AlertID:   id,
		AlertType: alert.Type,
		Message:   fmt.Sprintf("resolved by %s", who),
		Timestamp: now,
	})
	log.Info("alert resolved",
		slog.String("code", "ESC_RESOLVE"),
		slog.String("by", who),
		slog.Duration("open_for", now.Sub(alert.CreatedAt)))
	e.notifyOps(ctx, alert, fmt.Sprintf("Alert %s resolved by %s", alert.Type, who), resolution, who)
	return alert, nil
}

// Run drives the escalation timers until the context is cancelled.
func (e *Engine) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick fires every escalation whose deadline has passed. Exposed so tests
// can drive time explicitly.
func (e *Engine) Tick(ctx context.Context) int {
	fired := 0
	for _, entry := range e.sched.due(e.clock.Now()) {
		if e.fire(ctx, entry.alertID, entry.level) {
			fired++
		}
	}
	return fired
}

func (e *Engine) fire(ctx context.Context, id string, level int) bool {
	e.mu.Lock()
	alert, ok := e.active[id]
	if !ok || alert.Acknowledged || alert.Resolved {
		e.mu.Unlock()
		return false
	}
	if level > alert.EscalationLevel {
		alert.EscalationLevel = level
	}
	alertCopy := *alert
	e.stats.escalated++
	e.mu.Unlock()

	rule := e.ruleFor(alertCopy.Type)
	if level < 1 || level > len(rule.Steps) {
		return false
	}
	step := rule.Steps[level-1]

	log := logging.FromContext(logging.WithAlert(ctx, id))
	log.Info("alert escalated",
		slog.String("code", "ESC_FIRE"),
		slog.String("alert_type", string(alertCopy.Type)),
		slog.Int("level", level))

	e.collector.EscalationFired(alertCopy.Type, level)

	content := domain.Content{
		Title:   fmt.Sprintf("[%s] %s", alertCopy.Severity, alertCopy.Type),
		Message: alertCopy.Message,
		Metadata: map[string]any{
			"alert_id":         id,
			"alert_type":       string(alertCopy.Type),
			"escalation_level": level,
			"occurrences":      alertCopy.Occurrences,
		},
	}
	priority := domain.PriorityHigh
	if alertCopy.Severity == domain.SeverityCritical {
		priority = domain.PriorityCritical
	}
	if err := e.notifier.NotifyRoles(ctx, step.Roles, step.Channels, priority, content); err != nil {
		// Notification failure must not stop later escalation levels.
		log.Error("escalation notification failed",
			slog.String("code", "ESC_NOTIFY_ERR"),
			slog.Int("level", level),
			slog.Any("error", err))
	}

	e.hub.Publish(events.Event{
		Kind:      events.KindAlert,
		AlertID:   id,
		AlertType: alertCopy.Type,
		Message:   fmt.Sprintf("escalated to level %d", level),
		Attempt:   level,
		Timestamp: e.clock.Now(),
	})
	return true
}

// RunHousekeeping purges aged history and flags stale alerts on an interval.
func (e *Engine) RunHousekeeping(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Housekeep(ctx)
		}
	}
}

// Housekeep performs one maintenance pass: drops history entries past the
// retention window and raises a one-time signal for alerts that have sat
// unacknowledged beyond the stale threshold.
func (e *Engine) Housekeep(ctx context.Context) {
	log := logging.FromContext(ctx)
	now := e.clock.Now()

	if e.cfg.HistoryRetention > 0 {
		purged, err := e.history.PurgeBefore(ctx, now.Add(-e.cfg.HistoryRetention))
		if err != nil {
			log.Error("alert history purge failed",
				slog.String("code", "ESC_PURGE_ERR"), slog.Any("error", err))
		} else if purged > 0 {
			log.Info("purged aged alert history",
				slog.String("code", "ESC_PURGE"), slog.Int64("purged", purged))
		}
	}

	if e.cfg.HistoryRetention > 0 {
		e.mu.Lock()
		for id, at := range e.resolved {
			if at.Before(now.Add(-e.cfg.HistoryRetention)) {
				delete(e.resolved, id)
			}
		}
		e.mu.Unlock()
	}

	if e.cfg.StaleThreshold <= 0 {
		return
	}
	cutoff := now.Add(-e.cfg.StaleThreshold)

	e.mu.Lock()
	var stale []*domain.Alert
	for id, a := range e.active {
		if !a.Acknowledged && a.CreatedAt.Before(cutoff) && !e.stale[id] {
			e.stale[id] = true
			stale = append(stale, a)
		}
	}
	e.mu.Unlock()

	for _, a := range stale {
		log.Warn("alert unacknowledged past stale threshold",
			slog.String("code", "ESC_STALE"),
			slog.String("alert_id", a.ID),
			slog.String("alert_type", string(a.Type)),
			slog.Duration("age", now.Sub(a.CreatedAt)))
		e.hub.Publish(events.Event{
			Kind:      events.KindAlert,
			AlertID:   a.ID,
			AlertType: a.Type,
			Message:   "alert unacknowledged past stale threshold",
			Timestamp: now,
		})
	}
}

// ActiveAlerts returns a snapshot of open alerts, oldest first.
func (e *Engine) ActiveAlerts() []*domain.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*domain.Alert, 0, len(e.active))
	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (e *Engine) History(ctx context.Context, limit int) ([]*domain.Alert, error) {
	return e.history.History(ctx, limit)
}

func (e *Engine) Statistics() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Statistics{
		Active:            len(e.active),
		TotalRaised:       e.stats.raised,
		TotalMerged:       e.stats.merged,
		TotalSuppressed:   e.stats.suppressed,
		TotalAcknowledged: e.stats.acked,
		TotalResolved:     e.stats.resolved,
		TotalEscalations:  e.stats.escalated,
	}
	for _, a := range e.active {
		if !a.Acknowledged {
			s.Unacknowledged++
		}
	}
	if e.stats.acked > 0 {
		s.AvgAckTime = e.stats.ackTime / time.Duration(e.stats.acked)
	}
	if e.stats.resolved > 0 {
		s.AvgResolveTime = e.stats.resolveTime / time.Duration(e.stats.resolved)
	}
	return s
}

// Rules returns a copy of the current rule table.
func (e *Engine) Rules() map[domain.AlertType]domain.EscalationRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[domain.AlertType]domain.EscalationRule, len(e.rules))
	for t, r := range e.rules {
		out[t] = r
	}
	return out
}

// SetRule replaces the ladder for one alert type. Alerts already in flight
// keep the steps they were scheduled with.
func (e *Engine) SetRule(t domain.AlertType, rule domain.EscalationRule) error {
	if err := validateRule(rule); err != nil {
		return fmt.Errorf("invalid rule for %s: %w", t, err)
	}
	e.mu.Lock()
	e.rules[t] = rule
	e.mu.Unlock()
	return nil
}

func (e *Engine) ruleFor(t domain.AlertType) domain.EscalationRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rule, ok := e.rules[t]; ok {
		return rule
	}
	return domain.EscalationRule{
		Steps: []domain.EscalationStep{
			{Delay: 0, Roles: []domain.Role{domain.RoleAdmin}, Channels: []domain.Channel{domain.ChannelWebSocket}},
		},
		Cooldown: e.cfg.DefaultCooldown,
	}
}

// notifyOps tells the other operators about an acknowledge or resolve,
// leaving out the operator who performed it.
func (e *Engine) notifyOps(ctx context.Context, alert *domain.Alert, title, body string, exclude ...string) {
	content := domain.Content{
		Title:   title,
		Message: body,
		Metadata: map[string]any{
			"alert_id":   alert.ID,
			"alert_type": string(alert.Type),
		},
	}
	if err := e.notifier.NotifyRoles(ctx, []domain.Role{domain.RoleAdmin}, []domain.Channel{domain.ChannelWebSocket}, domain.PriorityMedium, content, exclude...); err != nil {
		logging.FromContext(ctx).Warn("operator notice failed",
			slog.String("code", "ESC_NOTIFY_ERR"), slog.Any("error", err))
	}
}
