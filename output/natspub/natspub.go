// Package natspub republishes pipeline events onto NATS so other
// services can consume readings and predictions without touching the
// HTTP or WebSocket surfaces.
//
// Subjects follow the platform convention:
//
//	scent.<org>.<platform>.reading.<device>
//	scent.<org>.<platform>.prediction.<device>
package natspub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/scentstream/broadcast"
	"github.com/c360/scentstream/component"
	"github.com/c360/scentstream/errors"
	"github.com/c360/scentstream/metric"
	"github.com/c360/scentstream/natsclient"
	"github.com/c360/scentstream/scent"
)

// Config holds the NATS publisher settings.
type Config struct {
	// Org is the organization segment of published subjects.
	Org string `json:"org"`
	// Platform is the platform segment of published subjects.
	Platform string `json:"platform"`
	// SubjectPrefix overrides the leading subject token. Defaults to "scent".
	SubjectPrefix string `json:"subject_prefix"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Org:           "default",
		Platform:      "scentstream",
		SubjectPrefix: "scent",
	}
}

// Deps holds the component's runtime dependencies.
type Deps struct {
	Config          Config
	Broadcaster     *broadcast.Broadcaster
	NATSClient      *natsclient.Client
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// Publisher bridges the in-process broadcaster to NATS.
type Publisher struct {
	cfg         Config
	broadcaster *broadcast.Broadcaster
	nats        *natsclient.Client
	logger      *slog.Logger
	metrics     *metric.Metrics

	mu       sync.Mutex
	sub      *broadcast.Subscriber
	shutdown chan struct{}
	done     chan struct{}

	running      atomic.Bool
	startTime    time.Time
	published    atomic.Uint64
	publishErrs  atomic.Uint64
	lastActivity atomic.Value // time.Time
}

var _ component.Discoverable = (*Publisher)(nil)
var _ component.LifecycleComponent = (*Publisher)(nil)

// New creates the NATS publisher component.
func New(deps Deps) (*Publisher, error) {
	if deps.Broadcaster == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "NATSPublisher", "New", "broadcaster is required")
	}
	if deps.NATSClient == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "NATSPublisher", "New", "nats client is required")
	}

	cfg := deps.Config
	if cfg.Org == "" {
		cfg.Org = "default"
	}
	if cfg.Platform == "" {
		cfg.Platform = "scentstream"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "scent"
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "nats-publisher")
	}

	var metrics *metric.Metrics
	if deps.MetricsRegistry != nil {
		metrics = deps.MetricsRegistry.CoreMetrics()
	}

	p := &Publisher{
		cfg:         cfg,
		broadcaster: deps.Broadcaster,
		nats:        deps.NATSClient,
		logger:      logger,
		metrics:     metrics,
	}
	p.lastActivity.Store(time.Time{})
	return p, nil
}

// Initialize validates the configuration.
func (p *Publisher) Initialize() error {
	for _, segment := range []string{p.cfg.SubjectPrefix, p.cfg.Org, p.cfg.Platform} {
		if segment == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "NATSPublisher", "Initialize",
				"subject segments cannot be empty")
		}
	}
	return nil
}

// Start subscribes to the broadcaster and begins republishing.
func (p *Publisher) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running.Load() {
		return nil
	}

	p.sub = p.broadcaster.Subscribe()
	p.shutdown = make(chan struct{})
	p.done = make(chan struct{})
	p.startTime = time.Now()
	p.running.Store(true)
	if p.metrics != nil {
		p.metrics.RecordComponentStatus("nats-publisher", 1)
	}

	go p.pump()

	p.nats.OnHealthChange(func(healthy bool) {
		if p.metrics != nil {
			p.metrics.RecordHealthStatus("nats-publisher", healthy)
		}
		if healthy {
			p.logger.Info("nats connection restored", "component", "nats-publisher")
		} else {
			p.logger.Warn("nats connection lost, events will be dropped",
				"component", "nats-publisher")
		}
	})

	p.logger.Info("nats publisher started",
		"component", "nats-publisher",
		"subject_prefix", p.subjectBase())
	return nil
}

// Stop unsubscribes and waits for the pump to drain.
func (p *Publisher) Stop(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running.Swap(false) {
		return nil
	}
	if p.metrics != nil {
		p.metrics.RecordComponentStatus("nats-publisher", 0)
	}

	close(p.shutdown)
	p.broadcaster.Unsubscribe(p.sub)
	p.sub = nil

	select {
	case <-p.done:
	case <-time.After(timeout):
		p.logger.Warn("nats publisher did not drain within timeout",
			"component", "nats-publisher")
	}
	return nil
}

func (p *Publisher) pump() {
	defer close(p.done)
	for {
		select {
		case <-p.shutdown:
			return
		case event, ok := <-p.sub.Events():
			if !ok {
				return
			}
			p.publish(event)
		}
	}
}

// publish maps one broadcast event onto its NATS subject. Transport
// failures are counted and logged but never stop the pump; the
// natsclient reconnects on its own.
func (p *Publisher) publish(event scent.Event) {
	subject := p.subjectFor(event)
	if subject == "" {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.publishErrs.Add(1)
		if p.metrics != nil {
			p.metrics.RecordError("nats-publisher", "json_marshal")
		}
		return
	}

	if err := p.nats.Publish(context.Background(), subject, payload); err != nil {
		p.publishErrs.Add(1)
		if p.metrics != nil {
			p.metrics.RecordError("nats-publisher", "publish_failed")
		}
		p.logger.Warn("nats publish failed",
			"component", "nats-publisher",
			"subject", subject,
			"error", err)
		return
	}

	p.published.Add(1)
	p.lastActivity.Store(time.Now())
	p.logger.Debug("event republished",
		"component", "nats-publisher",
		"subject", subject,
		"device", event.DeviceID)
}

func (p *Publisher) subjectBase() string {
	return fmt.Sprintf("%s.%s.%s", p.cfg.SubjectPrefix, p.cfg.Org, p.cfg.Platform)
}

// subjectFor returns the subject for an event, or empty to skip
// unrecognized event types.
func (p *Publisher) subjectFor(event scent.Event) string {
	if event.DeviceID == "" {
		return ""
	}
	switch event.Type {
	case scent.EventSensorData:
		return fmt.Sprintf("%s.reading.%s", p.subjectBase(), event.DeviceID)
	case scent.EventPrediction:
		return fmt.Sprintf("%s.prediction.%s", p.subjectBase(), event.DeviceID)
	default:
		return ""
	}
}

// Meta implements component.Discoverable.
func (p *Publisher) Meta() component.Metadata {
	return component.Metadata{
		Name:        "nats-publisher",
		Type:        "output",
		Description: fmt.Sprintf("republishes pipeline events under %s", p.subjectBase()),
		Version:     "1.0.0",
	}
}

// ConfigSchema implements component.Discoverable.
func (p *Publisher) ConfigSchema() component.ConfigSchema {
	return component.ConfigSchema{
		Properties: map[string]component.PropertySchema{
			"org": {
				Type:        "string",
				Description: "organization segment of published subjects",
				Default:     "default",
			},
			"platform": {
				Type:        "string",
				Description: "platform segment of published subjects",
				Default:     "scentstream",
			},
			"subject_prefix": {
				Type:        "string",
				Description: "leading subject token",
				Default:     "scent",
			},
		},
	}
}

// Health implements component.Discoverable.
func (p *Publisher) Health() component.HealthStatus {
	healthy := p.running.Load() && p.nats.IsHealthy()
	return component.HealthStatus{
		Healthy:    healthy,
		LastCheck:  time.Now(),
		ErrorCount: int(p.publishErrs.Load()),
		Uptime:     time.Since(p.startTime),
	}
}

// DataFlow implements component.Discoverable.
func (p *Publisher) DataFlow() component.FlowMetrics {
	published := p.published.Load()
	lastActivity, _ := p.lastActivity.Load().(time.Time)

	var perSecond, errorRate float64
	if uptime := time.Since(p.startTime).Seconds(); uptime > 0 {
		perSecond = float64(published) / uptime
	}
	if published > 0 {
		errorRate = float64(p.publishErrs.Load()) / float64(published)
	}

	return component.FlowMetrics{
		MessagesPerSecond: perSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}
