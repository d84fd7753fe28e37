package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SubarnaPy/pharmacy-final-sub001/internal/domain"
)

// Collector holds the Prometheus instruments for the delivery pipeline.
type Collector struct {
	registry *prometheus.Registry

	notificationsCreated prometheus.Counter
	deliveriesTotal      *prometheus.CounterVec
	sendLatency          *prometheus.HistogramVec
	queueDepth           prometheus.Gauge
	activeAlerts         prometheus.Gauge
	escalationsTotal     *prometheus.CounterVec
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		notificationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notifier_notifications_created_total",
			Help: "Total number of notifications created",
		}),
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifier_deliveries_total",
			Help: "Delivery attempts by channel and outcome",
		}, []string{"channel", "status"}),
		sendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notifier_send_latency_seconds",
			Help:    "Channel send latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"channel"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notifier_queue_depth",
			Help: "Number of items in the delivery queue",
		}),
		activeAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notifier_active_alerts",
			Help: "Number of active (unresolved) alerts",
		}),
		escalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifier_escalations_total",
			Help: "Escalation notifications fired by alert type and level",
		}, []string{"alert_type", "level"}),
	}

	c.registry.MustRegister(
		c.notificationsCreated,
		c.deliveriesTotal,
		c.sendLatency,
		c.queueDepth,
		c.activeAlerts,
		c.escalationsTotal,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) NotificationCreated() {
	c.notificationsCreated.Inc()
}

func (c *Collector) DeliveryOutcome(ch domain.Channel, status string, latencySeconds float64) {
	c.deliveriesTotal.WithLabelValues(string(ch), status).Inc()
	if status == "delivered" {
		c.sendLatency.WithLabelValues(string(ch)).Observe(latencySeconds)
	}
}

func (c *Collector) SetQueueDepth(depth int64) {
	c.queueDepth.Set(float64(depth))
}

func (c *Collector) SetActiveAlerts(n int) {
	c.activeAlerts.Set(float64(n))
}

func (c *Collector) EscalationFired(alertType domain.AlertType, level int) {
	c.escalationsTotal.WithLabelValues(string(alertType), levelLabel(level)).Inc()
}

func levelLabel(level int) string {
	switch level {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	default:
		return "4+"
	}
}
