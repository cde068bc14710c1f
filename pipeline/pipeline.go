// Package pipeline is the processor at the center of the service: it
// accepts sensor readings, classifies them through the predictor
// boundary, stabilizes the classification, encodes the emitter control
// vector, and fans the raw reading and the stabilized result out to the
// broadcaster. All per-device state lives here.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/scentstream/broadcast"
	"github.com/c360/scentstream/component"
	"github.com/c360/scentstream/errors"
	"github.com/c360/scentstream/history"
	"github.com/c360/scentstream/metric"
	"github.com/c360/scentstream/predictor"
	"github.com/c360/scentstream/scent"
	"github.com/c360/scentstream/stabilizer"
)

// Config holds the pipeline's tunables.
type Config struct {
	// HistoryCapacity is the per-device reading window. Zero means
	// history.DefaultCapacity.
	HistoryCapacity int `json:"history_capacity"`
	// Stabilizer tunes the debounce state machine.
	Stabilizer stabilizer.Config `json:"stabilizer"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		HistoryCapacity: history.DefaultCapacity,
		Stabilizer:      stabilizer.DefaultConfig(),
	}
}

// Deps holds the pipeline's runtime dependencies.
type Deps struct {
	Config          Config
	Predictor       predictor.Predictor
	Broadcaster     *broadcast.Broadcaster
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// deviceEntry is everything the pipeline knows about one device. Every
// field is guarded by mu; the entry lock is the device's critical
// section and is never held across a predictor call.
type deviceEntry struct {
	mu      sync.Mutex
	ring    *history.Ring
	state   stabilizer.State
	last    *scent.Reading
	current *Current
	// seq numbers readings by receipt order; committed is the highest
	// seq whose prediction has been committed. Together they implement
	// last-writer-wins for out-of-order predictor completions.
	seq       uint64
	committed uint64
}

// Pipeline implements the ingest-to-broadcast processing chain.
type Pipeline struct {
	cfg         Config
	predictor   predictor.Predictor
	broadcaster *broadcast.Broadcaster
	stab        *stabilizer.Stabilizer
	logger      *slog.Logger
	metrics     *metric.Metrics

	devMu   sync.RWMutex
	devices map[string]*deviceEntry

	running   atomic.Bool
	startTime time.Time

	readings     atomic.Int64
	predictions  atomic.Int64
	errorCount   atomic.Int64
	superseded   atomic.Int64
	lastActivity atomic.Value // time.Time
}

var _ component.Discoverable = (*Pipeline)(nil)
var _ component.LifecycleComponent = (*Pipeline)(nil)

// New creates a pipeline from its dependencies.
func New(deps Deps) (*Pipeline, error) {
	if deps.Predictor == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Pipeline", "New", "predictor is required")
	}
	if deps.Broadcaster == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Pipeline", "New", "broadcaster is required")
	}

	cfg := deps.Config
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = history.DefaultCapacity
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "pipeline")
	}

	var metrics *metric.Metrics
	if deps.MetricsRegistry != nil {
		metrics = deps.MetricsRegistry.CoreMetrics()
	}

	p := &Pipeline{
		cfg:         cfg,
		predictor:   deps.Predictor,
		broadcaster: deps.Broadcaster,
		stab:        stabilizer.New(cfg.Stabilizer),
		logger:      logger,
		metrics:     metrics,
		devices:     make(map[string]*deviceEntry),
		startTime:   time.Now(),
	}
	p.lastActivity.Store(time.Time{})
	return p, nil
}

// Ingest runs one reading through the full chain and returns the
// stabilized result committed for it. When a newer reading for the same
// device commits first, the newer device state is returned instead and
// the stale prediction is discarded.
func (p *Pipeline) Ingest(ctx context.Context, reading scent.Reading) (scent.StabilizedResult, error) {
	if !p.running.Load() {
		return scent.StabilizedResult{}, errors.WrapInvalid(errors.ErrNotStarted, "Pipeline", "Ingest", "component check")
	}
	if reading.DeviceID == "" {
		p.errorCount.Add(1)
		if p.metrics != nil {
			p.metrics.RecordError("pipeline", "missing_device_id")
		}
		return scent.StabilizedResult{}, errors.WrapInvalid(errors.ErrMissingDeviceID, "Pipeline", "Ingest", "reading validation")
	}

	reading.ReceivedAt = time.Now()
	if reading.Timestamp.IsZero() {
		reading.Timestamp = reading.ReceivedAt
	}

	entry := p.entry(reading.DeviceID)

	// Critical section one: append, snapshot the delta, take a sequence
	// number. The predictor call happens outside the lock so slow
	// classification never serializes ingestion for the device.
	entry.mu.Lock()
	entry.seq++
	seq := entry.seq
	delta := stabilizer.DeltaBetween(entry.last, reading)
	r := reading
	entry.last = &r
	entry.ring.Append(reading)
	entry.mu.Unlock()

	p.readings.Add(1)
	p.lastActivity.Store(reading.ReceivedAt)
	if p.metrics != nil {
		p.metrics.RecordReadingIngested(reading.DeviceID)
	}

	p.broadcaster.Publish(scent.Event{
		Type:      scent.EventSensorData,
		DeviceID:  reading.DeviceID,
		Timestamp: reading.ReceivedAt,
		Data:      reading,
	})

	start := time.Now()
	pred := p.predictor.Predict(ctx, reading)
	p.predictions.Add(1)
	if p.metrics != nil {
		p.metrics.RecordPredictionLatency("pipeline", time.Since(start))
		outcome := "ok"
		if pred.Failed() {
			outcome = "failed"
		}
		p.metrics.RecordPrediction(reading.DeviceID, outcome)
	}
	if pred.Failed() {
		p.errorCount.Add(1)
		p.logger.Warn("classification failed",
			"component", "pipeline",
			"device", reading.DeviceID,
			"reason", pred.Error)
	}

	// Critical section two: commit. A newer reading may have committed
	// while we were predicting; its result must not be overwritten by
	// this older one.
	entry.mu.Lock()
	if entry.committed > seq {
		current := entry.current
		entry.mu.Unlock()

		p.superseded.Add(1)
		p.logger.Debug("prediction superseded by newer reading",
			"component", "pipeline",
			"device", reading.DeviceID,
			"seq", seq)
		if current != nil {
			return current.Result(), nil
		}
		return scent.StabilizedResult{}, errors.Wrap(errors.ErrPredictionStale, "Pipeline", "Ingest", "commit")
	}

	res, outcome := p.stab.Step(&entry.state, delta, pred)
	entry.committed = seq
	cur := newCurrent(reading, res)
	entry.current = cur
	entry.mu.Unlock()

	if outcome != stabilizer.OutcomePass && p.metrics != nil {
		p.metrics.RecordStabilizerOverride(reading.DeviceID, outcome.String())
	}
	p.logger.Debug("reading stabilized",
		"component", "pipeline",
		"device", reading.DeviceID,
		"scent", res.Scent,
		"confidence", res.Confidence,
		"outcome", outcome.String())

	p.broadcaster.Publish(scent.Event{
		Type:      scent.EventPrediction,
		DeviceID:  reading.DeviceID,
		Timestamp: cur.Timestamp,
		Data:      *cur,
	})

	return res, nil
}

// entry returns the device's entry, creating it on first sight.
func (p *Pipeline) entry(device string) *deviceEntry {
	p.devMu.RLock()
	e, ok := p.devices[device]
	p.devMu.RUnlock()
	if ok {
		return e
	}

	p.devMu.Lock()
	defer p.devMu.Unlock()
	if e, ok = p.devices[device]; ok {
		return e
	}
	e = &deviceEntry{ring: history.NewRing(p.cfg.HistoryCapacity)}
	p.devices[device] = e
	p.logger.Info("new device",
		"component", "pipeline",
		"device", device,
		"devices", len(p.devices))
	return e
}

// Initialize validates the pipeline's configuration.
func (p *Pipeline) Initialize() error {
	if p.predictor == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Pipeline", "Initialize", "predictor check")
	}
	if p.broadcaster == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Pipeline", "Initialize", "broadcaster check")
	}
	return nil
}

// Start marks the pipeline ready to ingest.
func (p *Pipeline) Start(_ context.Context) error {
	if p.running.Swap(true) {
		return nil
	}
	p.startTime = time.Now()
	if p.metrics != nil {
		p.metrics.RecordComponentStatus("pipeline", 1)
	}
	p.logger.Info("pipeline started",
		"component", "pipeline",
		"history_capacity", p.cfg.HistoryCapacity,
		"drop_threshold", p.stab.Config().DropThreshold,
		"repeat_limit", p.stab.Config().RepeatLimit)
	return nil
}

// Stop rejects further ingestion. In-flight Ingest calls finish on
// their own; the pipeline holds no goroutines of its own to wait for.
func (p *Pipeline) Stop(_ time.Duration) error {
	if !p.running.Swap(false) {
		return nil
	}
	if p.metrics != nil {
		p.metrics.RecordComponentStatus("pipeline", 0)
	}
	p.logger.Info("pipeline stopped",
		"component", "pipeline",
		"readings", p.readings.Load(),
		"predictions", p.predictions.Load(),
		"superseded", p.superseded.Load())
	return nil
}

// Meta implements component.Discoverable.
func (p *Pipeline) Meta() component.Metadata {
	return component.Metadata{
		Name:        "pipeline",
		Type:        "processor",
		Description: "ingest, classify, stabilize, and broadcast sensor readings",
		Version:     "1.0.0",
	}
}

// ConfigSchema implements component.Discoverable.
func (p *Pipeline) ConfigSchema() component.ConfigSchema {
	return component.ConfigSchema{
		Properties: map[string]component.PropertySchema{
			"history_capacity": {
				Type:        "int",
				Description: "readings retained per device",
				Default:     history.DefaultCapacity,
			},
			"stabilizer.drop_threshold": {
				Type:        "float",
				Description: "VOC/NO2 drop that forces a no_scent clear",
				Default:     stabilizer.DefaultDropThreshold,
			},
			"stabilizer.rise_threshold": {
				Type:        "float",
				Description: "VOC/NO2 rise that resets hysteresis",
				Default:     stabilizer.DefaultRiseThreshold,
			},
			"stabilizer.repeat_limit": {
				Type:        "int",
				Description: "consecutive repeats before a lingering scent is cleared",
				Default:     stabilizer.DefaultRepeatLimit,
			},
			"stabilizer.count_errors": {
				Type:        "bool",
				Description: "whether failed classifications advance the repeat counter",
				Default:     true,
			},
		},
	}
}

// Health implements component.Discoverable.
func (p *Pipeline) Health() component.HealthStatus {
	return component.HealthStatus{
		Healthy:    p.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(p.errorCount.Load()),
		Uptime:     time.Since(p.startTime),
	}
}

// DataFlow implements component.Discoverable.
func (p *Pipeline) DataFlow() component.FlowMetrics {
	readings := p.readings.Load()
	lastActivity, _ := p.lastActivity.Load().(time.Time)

	var perSecond, errorRate float64
	if uptime := time.Since(p.startTime).Seconds(); uptime > 0 {
		perSecond = float64(readings) / uptime
	}
	if readings > 0 {
		errorRate = float64(p.errorCount.Load()) / float64(readings)
	}

	return component.FlowMetrics{
		MessagesPerSecond: perSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}

// String identifies the pipeline in logs.
func (p *Pipeline) String() string {
	return fmt.Sprintf("pipeline(devices=%d)", p.DeviceCount())
}
