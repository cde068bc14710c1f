// Package httpingest is the HTTP input component: devices POST sensor
// readings to it and dashboards read history and current predictions
// back out. It owns its http.Server; routes are plain ServeMux method
// patterns.
package httpingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/scentstream/component"
	"github.com/c360/scentstream/errors"
	"github.com/c360/scentstream/metric"
	"github.com/c360/scentstream/pipeline"
	"github.com/c360/scentstream/scent"
)

// Config holds the HTTP ingest settings.
type Config struct {
	// Port to listen on. Zero lets the OS pick one (tests).
	Port int `json:"port"`
	// Bind address; empty means all interfaces.
	Bind string `json:"bind"`
	// MaxRequestSize caps a POST body in bytes.
	MaxRequestSize int64 `json:"max_request_size"`
	// EnableCORS adds permissive CORS headers for browser dashboards.
	EnableCORS bool `json:"enable_cors"`
	// CORSOrigins lists allowed origins; "*" allows any.
	CORSOrigins []string `json:"cors_origins"`
	// DefaultHistoryLimit applies when a history query has no limit.
	DefaultHistoryLimit int `json:"default_history_limit"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Port:                3000,
		MaxRequestSize:      1 << 20,
		EnableCORS:          true,
		CORSOrigins:         []string{"*"},
		DefaultHistoryLimit: 10,
	}
}

// Deps holds the component's runtime dependencies.
type Deps struct {
	Config          Config
	Pipeline        *pipeline.Pipeline
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// Ingest is the HTTP input component.
type Ingest struct {
	cfg      Config
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
	metrics  *metric.Metrics
	mux      *http.ServeMux

	mu        sync.Mutex
	server    *http.Server
	listener  net.Listener
	startTime time.Time

	running         atomic.Bool
	requestsTotal   atomic.Uint64
	requestsFailed  atomic.Uint64
	bytesReceived   atomic.Uint64
	lastActivityVal atomic.Value // time.Time
}

var _ component.Discoverable = (*Ingest)(nil)
var _ component.LifecycleComponent = (*Ingest)(nil)

// New creates the HTTP ingest component.
func New(deps Deps) (*Ingest, error) {
	if deps.Pipeline == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "HTTPIngest", "New", "pipeline is required")
	}

	cfg := deps.Config
	if cfg.MaxRequestSize <= 0 {
		cfg.MaxRequestSize = 1 << 20
	}
	if cfg.DefaultHistoryLimit <= 0 {
		cfg.DefaultHistoryLimit = 10
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "http-ingest")
	}

	var metrics *metric.Metrics
	if deps.MetricsRegistry != nil {
		metrics = deps.MetricsRegistry.CoreMetrics()
	}

	s := &Ingest{
		cfg:      cfg,
		pipeline: deps.Pipeline,
		logger:   logger,
		metrics:  metrics,
	}
	s.lastActivityVal.Store(time.Time{})
	s.mux = s.routes()
	return s, nil
}

// routes builds the ServeMux. Split out so tests can drive the handlers
// through httptest without binding a socket.
func (s *Ingest) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sensor-data", s.wrap(s.handleIngest))
	mux.HandleFunc("GET /api/sensor-data", s.wrap(s.handleSummary))
	mux.HandleFunc("GET /api/sensor-data/{device}", s.wrap(s.handleHistory))
	mux.HandleFunc("GET /api/predictions", s.wrap(s.handlePredictions))
	mux.HandleFunc("GET /api/predictions/{device}", s.wrap(s.handlePrediction))
	mux.HandleFunc("OPTIONS /api/", s.wrap(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// Handler exposes the route table, mainly for tests.
func (s *Ingest) Handler() http.Handler {
	return s.mux
}

// wrap applies cross-cutting request accounting and CORS.
func (s *Ingest) wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.requestsTotal.Add(1)
		s.lastActivityVal.Store(time.Now())
		if s.cfg.EnableCORS {
			s.applyCORS(w, r)
		}
		next(w, r)
	}
}

func (s *Ingest) applyCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	for _, allowed := range s.cfg.CORSOrigins {
		if allowed == "*" || allowed == origin {
			if origin == "" {
				origin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			return
		}
	}
}

// handleIngest accepts one reading and runs it through the pipeline.
func (s *Ingest) handleIngest(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxRequestSize+1))
	if err != nil {
		s.fail(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > s.cfg.MaxRequestSize {
		s.fail(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxRequestSize))
		return
	}
	s.bytesReceived.Add(uint64(len(body)))

	var reading scent.Reading
	if err := json.Unmarshal(body, &reading); err != nil {
		s.fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if reading.DeviceID == "" {
		s.fail(w, http.StatusBadRequest, "device_id is required")
		return
	}

	res, err := s.pipeline.Ingest(r.Context(), reading)
	if err != nil {
		s.failErr(w, err)
		return
	}

	s.logger.Debug("reading ingested",
		"component", "http-ingest",
		"device", reading.DeviceID,
		"scent", res.Scent)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Sensor data received successfully",
		"device_id":  reading.DeviceID,
		"prediction": res,
	})
}

// handleHistory returns a device's recent readings, newest last.
func (s *Ingest) handleHistory(w http.ResponseWriter, r *http.Request) {
	device := r.PathValue("device")

	limit := s.cfg.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.fail(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	data, err := s.pipeline.History(device, limit)
	if err != nil {
		s.failErr(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Sensor data retrieved successfully",
		"device_id": device,
		"count":     len(data),
		"data":      data,
	})
}

// handleSummary returns one row per known device.
func (s *Ingest) handleSummary(w http.ResponseWriter, _ *http.Request) {
	summary := s.pipeline.Summary()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"message": "Device summary retrieved successfully",
		"count":   len(summary),
		"devices": summary,
	})
}

// handlePredictions returns every device's current prediction.
func (s *Ingest) handlePredictions(w http.ResponseWriter, _ *http.Request) {
	predictions := s.pipeline.AllCurrent()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"count":       len(predictions),
		"predictions": predictions,
	})
}

// handlePrediction returns one device's current prediction.
func (s *Ingest) handlePrediction(w http.ResponseWriter, r *http.Request) {
	device := r.PathValue("device")
	cur, err := s.pipeline.Current(device)
	if err != nil {
		s.failErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cur)
}

func (s *Ingest) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !s.running.Load() {
		status = "stopped"
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]any{
		"status":  status,
		"devices": s.pipeline.DeviceCount(),
	})
}

// failErr maps pipeline errors onto HTTP status codes.
func (s *Ingest) failErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errors.ErrDeviceNotFound):
		s.fail(w, http.StatusNotFound, "device not found")
	case errors.Is(err, errors.ErrNoPrediction):
		s.fail(w, http.StatusNotFound, "no prediction available")
	case errors.Is(err, errors.ErrNotStarted):
		s.fail(w, http.StatusServiceUnavailable, "service not ready")
	case errors.IsInvalid(err):
		s.fail(w, http.StatusBadRequest, "invalid request")
	default:
		s.logger.Error("request failed",
			"component", "http-ingest",
			"error", err)
		s.fail(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *Ingest) fail(w http.ResponseWriter, code int, message string) {
	s.requestsFailed.Add(1)
	s.writeJSON(w, code, map[string]any{
		"error":  message,
		"status": code,
	})
}

func (s *Ingest) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to write response",
			"component", "http-ingest",
			"error", err)
	}
}

// Initialize validates the configuration.
func (s *Ingest) Initialize() error {
	if s.cfg.Port < 0 || s.cfg.Port > 65535 {
		return errors.WrapInvalid(fmt.Errorf("invalid port %d", s.cfg.Port),
			"HTTPIngest", "Initialize", "port validation")
	}
	if s.pipeline == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"HTTPIngest", "Initialize", "pipeline check")
	}
	return nil
}

// Start binds the listener and serves requests until Stop.
func (s *Ingest) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Bind, s.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WrapTransient(err, "HTTPIngest", "Start", "listener binding")
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.running.Store(true)
	s.startTime = time.Now()
	if s.metrics != nil {
		s.metrics.RecordComponentStatus("http-ingest", 1)
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server terminated",
				"component", "http-ingest",
				"error", err)
		}
	}()

	s.logger.Info("http ingest listening",
		"component", "http-ingest",
		"address", listener.Addr().String())
	return nil
}

// Stop drains the server within the timeout.
func (s *Ingest) Stop(timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Swap(false) {
		return nil
	}
	if s.metrics != nil {
		s.metrics.RecordComponentStatus("http-ingest", 0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := s.server.Shutdown(ctx)
	s.server = nil
	s.listener = nil
	if err != nil {
		return errors.WrapTransient(err, "HTTPIngest", "Stop", "graceful shutdown")
	}
	return nil
}

// Address returns the bound address, for tests using port zero.
func (s *Ingest) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Meta implements component.Discoverable.
func (s *Ingest) Meta() component.Metadata {
	return component.Metadata{
		Name:        "http-ingest",
		Type:        "input",
		Description: fmt.Sprintf("HTTP sensor ingestion on port %d", s.cfg.Port),
		Version:     "1.0.0",
	}
}

// ConfigSchema implements component.Discoverable.
func (s *Ingest) ConfigSchema() component.ConfigSchema {
	return component.ConfigSchema{
		Properties: map[string]component.PropertySchema{
			"port": {
				Type:        "int",
				Description: "HTTP listen port",
				Default:     3000,
			},
			"max_request_size": {
				Type:        "int",
				Description: "maximum POST body size in bytes",
				Default:     1 << 20,
			},
			"enable_cors": {
				Type:        "bool",
				Description: "emit CORS headers for browser clients",
				Default:     true,
			},
			"default_history_limit": {
				Type:        "int",
				Description: "history rows returned when no limit is given",
				Default:     10,
			},
		},
		Required: []string{"port"},
	}
}

// Health implements component.Discoverable.
func (s *Ingest) Health() component.HealthStatus {
	return component.HealthStatus{
		Healthy:    s.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(s.requestsFailed.Load()),
		Uptime:     time.Since(s.startTime),
	}
}

// DataFlow implements component.Discoverable.
func (s *Ingest) DataFlow() component.FlowMetrics {
	total := s.requestsTotal.Load()
	failed := s.requestsFailed.Load()
	lastActivity, _ := s.lastActivityVal.Load().(time.Time)

	var perSecond, bytesPerSecond, errorRate float64
	if uptime := time.Since(s.startTime).Seconds(); uptime > 0 {
		perSecond = float64(total) / uptime
		bytesPerSecond = float64(s.bytesReceived.Load()) / uptime
	}
	if total > 0 {
		errorRate = float64(failed) / float64(total)
	}

	return component.FlowMetrics{
		MessagesPerSecond: perSecond,
		BytesPerSecond:    bytesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}
