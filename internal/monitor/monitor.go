package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/clock"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/config"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/escalation"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/logging"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/queue"
	"github.com/SubarnaPy/pharmacy-final-sub001/internal/store"
)

// AlertSink receives problem reports raised by the monitor.
type AlertSink interface {
	ProcessAlert(ctx context.Context, req escalation.AlertRequest) (*domain.Alert, error)
}

// Thresholds are the tunable health limits, adjustable at runtime.
type Thresholds struct {
	DeliveryRateFloor   float64       `json:"delivery_rate_floor"`
	FailureRateWarning  float64       `json:"failure_rate_warning"`
	FailureRateCritical float64       `json:"failure_rate_critical"`
	ChannelFailureRate  float64       `json:"channel_failure_rate"`
	ConsecutiveWindows  int           `json:"consecutive_windows"`
	LatencyCeiling      time.Duration `json:"latency_ceiling"`
	StuckThreshold      time.Duration `json:"stuck_threshold"`
}

// ChannelHealth is one channel's slice of the last sweep.
type ChannelHealth struct {
	Sent              int64   `json:"sent"`
	Delivered         int64   `json:"delivered"`
	Failed            int64   `json:"failed"`
	FailureRate       float64 `json:"failure_rate"`
	ConsecutiveUnwell int     `json:"consecutive_unwell"`
}

// Status is a snapshot of system health as of the last sweep.
type Status struct {
	LastSweepAt  time.Time                         `json:"last_sweep_at"`
	Healthy      bool                              `json:"healthy"`
	Problems     []string                          `json:"problems,omitempty"`
	DeliveryRate float64                           `json:"delivery_rate"`
	FailureRate  float64                           `json:"failure_rate"`
	AvgLatencyMs float64                           `json:"avg_latency_ms"`
	Sent         int64                             `json:"sent"`
	QueueDepth   int64                             `json:"queue_depth"`
	StuckFound   int                               `json:"stuck_found"`
	PerChannel   map[domain.Channel]*ChannelHealth `json:"per_channel"`
}

// Monitor sweeps delivery statistics on an interval, compares them against
// the thresholds and reports breaches to the alert sink. It also requeues
// notifications that have sat in pending longer than the stuck threshold.
type Monitor struct {
	analytics     store.AnalyticsStore
	notifications store.NotificationStore
	queue         *queue.Queue
	sink          AlertSink
	clock         clock.Clock

	window     time.Duration
	retryBatch int

	mu          sync.Mutex
	thresholds  Thresholds
	consecutive map[domain.Channel]int
	status      Status
}

func New(analytics store.AnalyticsStore, notifications store.NotificationStore, q *queue.Queue, sink AlertSink, clk clock.Clock, cfg config.MonitorConfig) *Monitor {
	return &Monitor{
		analytics:     analytics,
		notifications: notifications,
		queue:         q,
		sink:          sink,
		clock:         clk,
		window:        cfg.Window,
		retryBatch:    cfg.StuckRetryBatch,
		thresholds: Thresholds{
			DeliveryRateFloor:   cfg.DeliveryRateFloor,
			FailureRateWarning:  cfg.FailureRateWarning,
			FailureRateCritical: cfg.FailureRateCritical,
			ChannelFailureRate:  cfg.ChannelFailureRate,
			ConsecutiveWindows:  cfg.ConsecutiveWindows,
			LatencyCeiling:      cfg.LatencyCeiling,
			StuckThreshold:      cfg.StuckThreshold,
		},
		consecutive: make(map[domain.Channel]int),
	}
}

// Run sweeps on the interval until the context is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	log := logging.FromContext(ctx)
	log.Info("delivery monitor started",
		slog.String("code", "MON_START"),
		slog.Duration("interval", interval),
		slog.Duration("window", m.window))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("delivery monitor stopped", slog.String("code", "MON_STOP"))
			return
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil {
				log.Error("monitor sweep failed",
					slog.String("code", "MON_SWEEP_ERR"), slog.Any("error", err))
			}
		}
	}
}

// Sweep runs one full health pass over the trailing window.
func (m *Monitor) Sweep(ctx context.Context) error {
	now := m.clock.Now()
	ws, err := m.analytics.Window(ctx, now.Add(-m.window), now)
	if err != nil {
		return fmt.Errorf("load window stats: %w", err)
	}

	th := m.GetThresholds()
	st := Status{
		LastSweepAt:  now,
		Healthy:      true,
		DeliveryRate: ws.Overall.DeliveryRate(),
		FailureRate:  ws.Overall.FailureRate(),
		AvgLatencyMs: ws.Overall.AvgLatencyMs(),
		Sent:         ws.Overall.Sent,
		PerChannel:   make(map[domain.Channel]*ChannelHealth),
	}

	if ws.Overall.Sent > 0 {
		m.checkOverall(ctx, ws, th, &st)
		m.checkChannels(ctx, ws, th, &st)
		m.checkLatency(ctx, ws, th, &st)
	}
	m.checkStuck(ctx, now, th, &st)

	if depth, err := m.queue.Depth(ctx); err == nil {
		st.QueueDepth = depth
	}

	m.mu.Lock()
	m.status = st
	m.mu.Unlock()

	logging.FromContext(ctx).Debug("monitor sweep complete",
		slog.String("code", "MON_SWEEP"),
		slog.Int64("sent", st.Sent),
		slog.Float64("delivery_rate", st.DeliveryRate),
		slog.Int("problems", len(st.Problems)))
	return nil
}

func (m *Monitor) checkOverall(ctx context.Context, ws *store.WindowStats, th Thresholds, st *Status) {
	rate := ws.Overall.DeliveryRate()
	if rate < th.DeliveryRateFloor {
		m.raise(ctx, st, escalation.AlertRequest{
			Type:     domain.AlertLowDeliveryRate,
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("delivery rate %.1f%% below floor %.1f%%", rate*100, th.DeliveryRateFloor*100),
			DedupKey: "overall",
			Payload: map[string]any{
				"delivery_rate": rate,
				"sent":          ws.Overall.Sent,
				"delivered":     ws.Overall.Delivered,
			},
		})
	}

	failure := ws.Overall.FailureRate()
	switch {
	case failure > th.FailureRateCritical:
		m.raise(ctx, st, escalation.AlertRequest{
			Type:     domain.AlertCriticalFailureRate,
			Severity: domain.SeverityCritical,
			Message:  fmt.Sprintf("failure rate %.1f%% above critical threshold %.1f%%", failure*100, th.FailureRateCritical*100),
			DedupKey: "overall",
			Payload: map[string]any{
				"failure_rate": failure,
				"sent":         ws.Overall.Sent,
				"failed":       ws.Overall.Failed,
			},
		})
	case failure > th.FailureRateWarning:
		m.raise(ctx, st, escalation.AlertRequest{
			Type:     domain.AlertHighFailureRate,
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("failure rate %.1f%% above warning threshold %.1f%%", failure*100, th.FailureRateWarning*100),
			DedupKey: "overall",
			Payload: map[string]any{
				"failure_rate": failure,
				"sent":         ws.Overall.Sent,
				"failed":       ws.Overall.Failed,
			},
		})
	}
}

// checkChannels tracks per-channel failure rates across sweeps. A channel is
// degraded only after breaching the limit for N consecutive windows; any
// healthy window resets its counter.
func (m *Monitor) checkChannels(ctx context.Context, ws *store.WindowStats, th Thresholds, st *Status) {
	m.mu.Lock()
	for ch, cs := range ws.PerChannel {
		health := &ChannelHealth{
			Sent:        cs.Sent,
			Delivered:   cs.Delivered,
			Failed:      cs.Failed,
			FailureRate: cs.FailureRate(),
		}
		if cs.Sent > 0 && cs.FailureRate() > th.ChannelFailureRate {
			m.consecutive[ch]++
		} else if cs.Sent > 0 {
			m.consecutive[ch] = 0
		}
		health.ConsecutiveUnwell = m.consecutive[ch]
		st.PerChannel[ch] = health
	}
	type degraded struct {
		ch   domain.Channel
		cs   store.ChannelStats
		runs int
	}
	var hits []degraded
	for ch, runs := range m.consecutive {
		if runs >= th.ConsecutiveWindows && th.ConsecutiveWindows > 0 {
			cs := ws.PerChannel[ch]
			if cs == nil {
				continue
			}
			hits = append(hits, degraded{ch: ch, cs: *cs, runs: runs})
		}
	}
	m.mu.Unlock()

	for _, hit := range hits {
		m.raise(ctx, st, escalation.AlertRequest{
			Type:     domain.AlertChannelDegraded,
			Severity: domain.SeverityCritical,
			Message:  fmt.Sprintf("channel %s failing at %.1f%% for %d consecutive windows", hit.ch, hit.cs.FailureRate()*100, hit.runs),
			DedupKey: string(hit.ch),
			Payload: map[string]any{
				"channel":      string(hit.ch),
				"failure_rate": hit.cs.FailureRate(),
				"windows":      hit.runs,
			},
		})
	}
}

func (m *Monitor) checkLatency(ctx context.Context, ws *store.WindowStats, th Thresholds, st *Status) {
	avg := time.Duration(ws.Overall.AvgLatencyMs()) * time.Millisecond
	if th.LatencyCeiling > 0 && avg > th.LatencyCeiling {
		m.raise(ctx, st, escalation.AlertRequest{
			Type:     domain.AlertHighLatency,
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("average delivery latency %s above ceiling %s", avg, th.LatencyCeiling),
			DedupKey: "overall",
			Payload:  map[string]any{"avg_latency_ms": ws.Overall.AvgLatencyMs()},
		})
	}
}

// checkStuck finds notifications whose recipients are all still pending past
// the stuck threshold, raises an alert and requeues them for another pass.
func (m *Monitor) checkStuck(ctx context.Context, now time.Time, th Thresholds, st *Status) {
	log := logging.FromContext(ctx)
	stuck, err := m.notifications.FindStuck(ctx, now.Add(-th.StuckThreshold), m.retryBatch)
	if err != nil {
		log.Error("stuck notification scan failed",
			slog.String("code", "MON_STUCK_ERR"), slog.Any("error", err))
		return
	}
	if len(stuck) == 0 {
		return
	}
	st.StuckFound = len(stuck)

	m.raise(ctx, st, escalation.AlertRequest{
		Type:     domain.AlertStuckNotifications,
		Severity: domain.SeverityWarning,
		Message:  fmt.Sprintf("%d notifications pending longer than %s", len(stuck), th.StuckThreshold),
		DedupKey: "stuck",
		Payload:  map[string]any{"count": len(stuck)},
	})

	requeued := 0
	for _, n := range stuck {
		count, err := m.queue.Requeue(ctx, n)
		if err != nil {
			log.Warn("stuck notification requeue failed",
				slog.String("code", "MON_REQUEUE_ERR"),
				slog.String("notification_id", n.ID),
				slog.Any("error", err))
			continue
		}
		requeued += count
	}
	log.Info("requeued stuck notifications",
		slog.String("code", "MON_REQUEUE"),
		slog.Int("stuck", len(stuck)),
		slog.Int("requeued", requeued))
}

func (m *Monitor) raise(ctx context.Context, st *Status, req escalation.AlertRequest) {
	st.Healthy = false
	st.Problems = append(st.Problems, req.Message)
	if _, err := m.sink.ProcessAlert(ctx, req); err != nil {
		logging.FromContext(ctx).Error("failed to report alert",
			slog.String("code", "MON_ALERT_ERR"),
			slog.String("alert_type", string(req.Type)),
			slog.Any("error", err))
	}
}

// Status returns the snapshot from the most recent sweep.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Monitor) GetThresholds() Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.thresholds
}

// SetThresholds replaces the health limits. Zero-valued fields keep their
// current setting.
func (m *Monitor) SetThresholds(t Thresholds) Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.DeliveryRateFloor > 0 {
		m.thresholds.DeliveryRateFloor = t.DeliveryRateFloor
	}
	if t.FailureRateWarning > 0 {
		m.thresholds.FailureRateWarning = t.FailureRateWarning
	}
	if t.FailureRateCritical > 0 {
		m.thresholds.FailureRateCritical = t.FailureRateCritical
	}
	if t.ChannelFailureRate > 0 {
		m.thresholds.ChannelFailureRate = t.ChannelFailureRate
	}
	if t.ConsecutiveWindows > 0 {
		m.thresholds.ConsecutiveWindows = t.ConsecutiveWindows
	}
	if t.LatencyCeiling > 0 {
		m.thresholds.LatencyCeiling = t.LatencyCeiling
	}
	if t.StuckThreshold > 0 {
		m.thresholds.StuckThreshold = t.StuckThreshold
	}
	return m.thresholds
}
