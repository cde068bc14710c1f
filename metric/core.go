package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics for the scent pipeline
type Metrics struct {
	// Pipeline metrics
	ComponentStatus    *prometheus.GaugeVec
	ReadingsIngested   *prometheus.CounterVec
	Predictions        *prometheus.CounterVec
	StabilizerOverride *prometheus.CounterVec
	PredictionLatency  *prometheus.HistogramVec
	ErrorsTotal        *prometheus.CounterVec
	HealthCheckStatus  *prometheus.GaugeVec

	// Fan-out metrics
	EventsPublished  *prometheus.CounterVec
	EventsDropped    *prometheus.CounterVec
	SubscriberCount  prometheus.Gauge
	WebSocketClients prometheus.Gauge

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSRTT        prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		ComponentStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "scentstream",
				Subsystem: "component",
				Name:      "status",
				Help:      "Component status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"component"},
		),

		ReadingsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scentstream",
				Subsystem: "readings",
				Name:      "ingested_total",
				Help:      "Total number of sensor readings ingested",
			},
			[]string{"device"},
		),

		Predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scentstream",
				Subsystem: "predictions",
				Name:      "total",
				Help:      "Total number of predictions by outcome",
			},
			[]string{"device", "outcome"},
		),

		StabilizerOverride: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scentstream",
				Subsystem: "stabilizer",
				Name:      "overrides_total",
				Help:      "Total number of stabilizer overrides by reason",
			},
			[]string{"device", "reason"},
		),

		PredictionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "scentstream",
				Subsystem: "predictions",
				Name:      "latency_seconds",
				Help:      "Predictor call latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"predictor"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scentstream",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of errors",
			},
			[]string{"component", "type"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "scentstream",
				Subsystem: "health",
				Name:      "status",
				Help:      "Health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"component"},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scentstream",
				Subsystem: "broadcast",
				Name:      "events_published_total",
				Help:      "Total number of events published to the broadcast bus",
			},
			[]string{"type"},
		),

		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scentstream",
				Subsystem: "broadcast",
				Name:      "events_dropped_total",
				Help:      "Total number of events dropped for slow subscribers",
			},
			[]string{"type"},
		),

		SubscriberCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "scentstream",
				Subsystem: "broadcast",
				Name:      "subscribers",
				Help:      "Current number of broadcast subscribers",
			},
		),

		WebSocketClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "scentstream",
				Subsystem: "websocket",
				Name:      "clients",
				Help:      "Current number of connected WebSocket clients",
			},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "scentstream",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSRTT: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "scentstream",
				Subsystem: "nats",
				Name:      "rtt_milliseconds",
				Help:      "NATS round-trip time in milliseconds",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "scentstream",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}

// RecordComponentStatus updates component status metric
func (c *Metrics) RecordComponentStatus(component string, status int) {
	c.ComponentStatus.WithLabelValues(component).Set(float64(status))
}

// RecordReadingIngested increments the ingested readings counter
func (c *Metrics) RecordReadingIngested(device string) {
	c.ReadingsIngested.WithLabelValues(device).Inc()
}

// RecordPrediction increments the prediction counter for an outcome,
// typically the predicted scent name or "error"
func (c *Metrics) RecordPrediction(device, outcome string) {
	c.Predictions.WithLabelValues(device, outcome).Inc()
}

// RecordStabilizerOverride increments the override counter for a reason
// ("repeat" or "delta")
func (c *Metrics) RecordStabilizerOverride(device, reason string) {
	c.StabilizerOverride.WithLabelValues(device, reason).Inc()
}

// RecordPredictionLatency records a predictor call duration
func (c *Metrics) RecordPredictionLatency(predictor string, duration time.Duration) {
	c.PredictionLatency.WithLabelValues(predictor).Observe(duration.Seconds())
}

// RecordError increments error counter
func (c *Metrics) RecordError(component, errorType string) {
	c.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordHealthStatus updates health check status
func (c *Metrics) RecordHealthStatus(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.HealthCheckStatus.WithLabelValues(component).Set(value)
}

// RecordEventPublished increments the published events counter
func (c *Metrics) RecordEventPublished(eventType string) {
	c.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventDropped increments the dropped events counter
func (c *Metrics) RecordEventDropped(eventType string) {
	c.EventsDropped.WithLabelValues(eventType).Inc()
}

// SetSubscriberCount updates the broadcast subscriber gauge
func (c *Metrics) SetSubscriberCount(n int) {
	c.SubscriberCount.Set(float64(n))
}

// SetWebSocketClients updates the connected WebSocket client gauge
func (c *Metrics) SetWebSocketClients(n int) {
	c.WebSocketClients.Set(float64(n))
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSRTT updates NATS round-trip time
func (c *Metrics) RecordNATSRTT(rtt time.Duration) {
	c.NATSRTT.Set(float64(rtt.Milliseconds()))
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}
