// Package websocket streams pipeline events to browser dashboards over
// a WebSocket endpoint. Each connection gets the full set of current
// predictions on connect, then live sensor_data and prediction events
// as the pipeline produces them.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/scentstream/broadcast"
	"github.com/c360/scentstream/component"
	"github.com/c360/scentstream/errors"
	"github.com/c360/scentstream/metric"
	"github.com/c360/scentstream/pipeline"
	"github.com/c360/scentstream/scent"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Config holds the WebSocket output settings.
type Config struct {
	// Port to listen on. Zero lets the OS pick one (tests).
	Port int `json:"port"`
	// Bind address; empty means all interfaces.
	Bind string `json:"bind"`
	// Path of the WebSocket endpoint.
	Path string `json:"path"`
	// SendBuffer is the per-client outbound queue depth.
	SendBuffer int `json:"send_buffer"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Port:       3001,
		Path:       "/ws",
		SendBuffer: 64,
	}
}

// Deps holds the component's runtime dependencies.
type Deps struct {
	Config          Config
	Broadcaster     *broadcast.Broadcaster
	Pipeline        *pipeline.Pipeline
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger
}

// clientInfo tracks one connected dashboard.
type clientInfo struct {
	conn        *websocket.Conn
	send        chan []byte
	connectedAt time.Time
	lastPong    atomic.Value // time.Time
	closed      atomic.Bool
	closeOnce   sync.Once
	writeMu     sync.Mutex
}

// Output is the WebSocket output component.
type Output struct {
	cfg         Config
	broadcaster *broadcast.Broadcaster
	pipeline    *pipeline.Pipeline
	logger      *slog.Logger
	upgrader    websocket.Upgrader

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	sub      *broadcast.Subscriber
	shutdown chan struct{}
	wg       *sync.WaitGroup

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*clientInfo

	running      atomic.Bool
	startTime    time.Time
	messagesSent atomic.Uint64
	bytesSent    atomic.Uint64
	errorCount   atomic.Uint64
	lastActivity atomic.Value // time.Time

	metrics     *Metrics
	coreMetrics *metric.Metrics
}

var _ component.Discoverable = (*Output)(nil)
var _ component.LifecycleComponent = (*Output)(nil)

// Metrics holds the Prometheus metrics owned by the WebSocket output.
type Metrics struct {
	messagesSent       *prometheus.CounterVec
	bytesSent          prometheus.Counter
	clientsConnected   prometheus.Gauge
	connectionTotal    prometheus.Counter
	disconnectionTotal *prometheus.CounterVec
	sendErrors         *prometheus.CounterVec
}

func newMetrics(registry *metric.MetricsRegistry) *Metrics {
	if registry == nil {
		return nil
	}

	m := &Metrics{
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scentstream",
			Subsystem: "websocket",
			Name:      "messages_sent_total",
			Help:      "Total messages sent to WebSocket clients",
		}, []string{"event_type"}),

		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scentstream",
			Subsystem: "websocket",
			Name:      "bytes_sent_total",
			Help:      "Total bytes sent to WebSocket clients",
		}),

		clientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "scentstream",
			Subsystem: "websocket",
			Name:      "clients_connected",
			Help:      "Number of currently connected clients",
		}),

		connectionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scentstream",
			Subsystem: "websocket",
			Name:      "client_connections_total",
			Help:      "Total client connections (including disconnected)",
		}),

		disconnectionTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scentstream",
			Subsystem: "websocket",
			Name:      "client_disconnections_total",
			Help:      "Total client disconnections",
		}, []string{"disconnect_reason"}),

		sendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scentstream",
			Subsystem: "websocket",
			Name:      "errors_total",
			Help:      "WebSocket send and upgrade errors",
		}, []string{"error_type"}),
	}

	registry.PrometheusRegistry().MustRegister(
		m.messagesSent,
		m.bytesSent,
		m.clientsConnected,
		m.connectionTotal,
		m.disconnectionTotal,
		m.sendErrors,
	)
	return m
}

// New creates the WebSocket output component.
func New(deps Deps) (*Output, error) {
	if deps.Broadcaster == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "WebSocketOutput", "New", "broadcaster is required")
	}

	cfg := deps.Config
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "websocket-output")
	}

	var core *metric.Metrics
	if deps.MetricsRegistry != nil {
		core = deps.MetricsRegistry.CoreMetrics()
	}

	o := &Output{
		cfg:         cfg,
		broadcaster: deps.Broadcaster,
		pipeline:    deps.Pipeline,
		logger:      logger,
		clients:     make(map[*websocket.Conn]*clientInfo),
		metrics:     newMetrics(deps.MetricsRegistry),
		coreMetrics: core,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboards are served from a different origin than the API.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
	o.lastActivity.Store(time.Time{})
	return o, nil
}

// Initialize validates the configuration.
func (o *Output) Initialize() error {
	if o.cfg.Port < 0 || o.cfg.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "WebSocketOutput", "Initialize",
			fmt.Sprintf("invalid port %d", o.cfg.Port))
	}
	if o.cfg.Path == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "WebSocketOutput", "Initialize", "path cannot be empty")
	}
	return nil
}

// Start binds the listener, subscribes to the broadcaster, and begins
// serving connections.
func (o *Output) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running.Load() {
		return nil
	}
	if ctx == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "WebSocketOutput", "Start", "context cannot be nil")
	}

	addr := fmt.Sprintf("%s:%d", o.cfg.Bind, o.cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WrapTransient(err, "WebSocketOutput", "Start", "listener binding")
	}

	mux := http.NewServeMux()
	mux.HandleFunc(o.cfg.Path, o.handleWebSocket)

	o.listener = listener
	o.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	o.sub = o.broadcaster.Subscribe()
	o.shutdown = make(chan struct{})
	o.wg = &sync.WaitGroup{}
	o.startTime = time.Now()
	o.running.Store(true)
	if o.coreMetrics != nil {
		o.coreMetrics.RecordComponentStatus("websocket-output", 1)
	}

	o.wg.Add(3)
	go o.runServer(listener)
	go o.pump()
	go o.maintainClients()

	o.logger.Info("websocket output listening",
		"component", "websocket-output",
		"address", listener.Addr().String(),
		"path", o.cfg.Path)
	return nil
}

// Stop drains the server, the event pump, and all client connections.
func (o *Output) Stop(timeout time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running.Swap(false) {
		return nil
	}
	if o.coreMetrics != nil {
		o.coreMetrics.RecordComponentStatus("websocket-output", 0)
	}

	close(o.shutdown)
	o.broadcaster.Unsubscribe(o.sub)
	o.sub = nil

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	shutdownErr := o.server.Shutdown(ctx)

	o.closeAllClients()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		o.logger.Warn("websocket goroutines did not exit within timeout",
			"component", "websocket-output")
	}

	o.server = nil
	o.listener = nil
	o.wg = nil

	if shutdownErr != nil {
		return errors.WrapTransient(shutdownErr, "WebSocketOutput", "Stop", "graceful shutdown")
	}
	return nil
}

// Address returns the bound address, for tests using port zero.
func (o *Output) Address() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.listener == nil {
		return ""
	}
	return o.listener.Addr().String()
}

func (o *Output) runServer(listener net.Listener) {
	defer o.wg.Done()
	if err := o.server.Serve(listener); err != nil && err != http.ErrServerClosed {
		o.logger.Error("websocket server terminated",
			"component", "websocket-output",
			"error", err)
		o.errorCount.Add(1)
	}
}

// pump moves events from the broadcaster subscription to every client
// send queue. Slow clients lose their oldest queued frame rather than
// stalling the pump.
func (o *Output) pump() {
	defer o.wg.Done()
	for {
		select {
		case <-o.shutdown:
			return
		case event, ok := <-o.sub.Events():
			if !ok {
				return
			}
			o.fanOut(event)
		}
	}
}

func (o *Output) fanOut(event scent.Event) {
	frame, err := json.Marshal(event)
	if err != nil {
		o.errorCount.Add(1)
		if o.metrics != nil {
			o.metrics.sendErrors.WithLabelValues("json_marshal").Inc()
		}
		return
	}
	o.lastActivity.Store(time.Now())

	o.clientsMu.RLock()
	defer o.clientsMu.RUnlock()
	for _, info := range o.clients {
		if info.closed.Load() {
			continue
		}
		select {
		case info.send <- frame:
		default:
			// Queue full. Drop the oldest frame to make room.
			select {
			case <-info.send:
			default:
			}
			select {
			case info.send <- frame:
			default:
			}
			if o.metrics != nil {
				o.metrics.sendErrors.WithLabelValues("client_backpressure").Inc()
			}
		}
	}
	if o.metrics != nil {
		o.metrics.messagesSent.WithLabelValues(string(event.Type)).Add(float64(o.clientCount()))
	}
}

// handleWebSocket upgrades the connection and starts the per-client
// reader and writer goroutines.
func (o *Output) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		o.errorCount.Add(1)
		if o.metrics != nil {
			o.metrics.sendErrors.WithLabelValues("connection_upgrade").Inc()
		}
		return
	}

	info := &clientInfo{
		conn:        conn,
		send:        make(chan []byte, o.cfg.SendBuffer),
		connectedAt: time.Now(),
	}
	info.lastPong.Store(time.Now())

	o.clientsMu.Lock()
	o.clients[conn] = info
	count := len(o.clients)
	o.clientsMu.Unlock()

	if o.metrics != nil {
		o.metrics.connectionTotal.Inc()
		o.metrics.clientsConnected.Set(float64(count))
	}
	if o.coreMetrics != nil {
		o.coreMetrics.SetWebSocketClients(count)
	}
	o.logger.Debug("client connected",
		"component", "websocket-output",
		"remote", conn.RemoteAddr().String(),
		"clients", count)

	o.sendSnapshot(info)

	o.wg.Add(2)
	go o.writeLoop(info)
	go o.readLoop(info)
}

// sendSnapshot queues the current prediction for every known device so
// a freshly connected dashboard renders state without waiting for the
// next reading.
func (o *Output) sendSnapshot(info *clientInfo) {
	if o.pipeline == nil {
		return
	}
	for device, cur := range o.pipeline.AllCurrent() {
		event := scent.Event{
			Type:      scent.EventPrediction,
			DeviceID:  device,
			Timestamp: cur.Timestamp,
			Data:      cur,
		}
		frame, err := json.Marshal(event)
		if err != nil {
			continue
		}
		select {
		case info.send <- frame:
		default:
			return
		}
	}
}

// writeLoop drains the client's send queue and keeps the connection
// alive with pings.
func (o *Output) writeLoop(info *clientInfo) {
	defer o.wg.Done()
	defer o.removeClient(info, "write_closed")

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.shutdown:
			return
		case frame, ok := <-info.send:
			if !ok {
				return
			}
			if err := o.writeFrame(info, websocket.TextMessage, frame); err != nil {
				o.errorCount.Add(1)
				if o.metrics != nil {
					o.metrics.sendErrors.WithLabelValues("client_send").Inc()
				}
				return
			}
			o.messagesSent.Add(1)
			o.bytesSent.Add(uint64(len(frame)))
			if o.metrics != nil {
				o.metrics.bytesSent.Add(float64(len(frame)))
			}
		case <-ticker.C:
			if err := o.writeFrame(info, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop consumes client frames, which only matter as liveness
// signals, and fires the pong handler.
func (o *Output) readLoop(info *clientInfo) {
	defer o.wg.Done()
	defer o.removeClient(info, "read_closed")

	info.conn.SetPongHandler(func(string) error {
		info.lastPong.Store(time.Now())
		_ = info.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	_ = info.conn.SetReadDeadline(time.Now().Add(pongTimeout))

	for {
		if _, _, err := info.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeFrame serializes writes to one connection. gorilla/websocket
// panics on concurrent writes to the same conn.
func (o *Output) writeFrame(info *clientInfo, messageType int, data []byte) error {
	info.writeMu.Lock()
	defer info.writeMu.Unlock()
	_ = info.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return info.conn.WriteMessage(messageType, data)
}

func (o *Output) removeClient(info *clientInfo, reason string) {
	info.closeOnce.Do(func() {
		info.closed.Store(true)

		o.clientsMu.Lock()
		delete(o.clients, info.conn)
		count := len(o.clients)
		o.clientsMu.Unlock()

		if o.metrics != nil {
			o.metrics.disconnectionTotal.WithLabelValues(reason).Inc()
			o.metrics.clientsConnected.Set(float64(count))
		}
		if o.coreMetrics != nil {
			o.coreMetrics.SetWebSocketClients(count)
		}
		_ = info.conn.Close()
		o.logger.Debug("client disconnected",
			"component", "websocket-output",
			"reason", reason,
			"clients", count)
	})
}

func (o *Output) closeAllClients() {
	o.clientsMu.Lock()
	clients := make([]*clientInfo, 0, len(o.clients))
	for _, info := range o.clients {
		clients = append(clients, info)
	}
	o.clientsMu.Unlock()

	for _, info := range clients {
		o.removeClient(info, "server_shutdown")
	}
}

// maintainClients drops connections that stopped answering pings.
func (o *Output) maintainClients() {
	defer o.wg.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.shutdown:
			return
		case <-ticker.C:
			o.clientsMu.RLock()
			stale := make([]*clientInfo, 0)
			for _, info := range o.clients {
				lastPong, _ := info.lastPong.Load().(time.Time)
				if time.Since(lastPong) > 2*pongTimeout {
					stale = append(stale, info)
				}
			}
			o.clientsMu.RUnlock()

			for _, info := range stale {
				o.removeClient(info, "ping_timeout")
			}
		}
	}
}

func (o *Output) clientCount() int {
	o.clientsMu.RLock()
	defer o.clientsMu.RUnlock()
	return len(o.clients)
}

// Meta implements component.Discoverable.
func (o *Output) Meta() component.Metadata {
	return component.Metadata{
		Name:        "websocket-output",
		Type:        "output",
		Description: fmt.Sprintf("WebSocket event stream on %s port %d", o.cfg.Path, o.cfg.Port),
		Version:     "1.0.0",
	}
}

// ConfigSchema implements component.Discoverable.
func (o *Output) ConfigSchema() component.ConfigSchema {
	return component.ConfigSchema{
		Properties: map[string]component.PropertySchema{
			"port": {
				Type:        "int",
				Description: "WebSocket listen port",
				Default:     3001,
			},
			"path": {
				Type:        "string",
				Description: "WebSocket endpoint path",
				Default:     "/ws",
			},
			"send_buffer": {
				Type:        "int",
				Description: "per-client outbound queue depth",
				Default:     64,
			},
		},
		Required: []string{"port"},
	}
}

// Health implements component.Discoverable.
func (o *Output) Health() component.HealthStatus {
	return component.HealthStatus{
		Healthy:    o.running.Load(),
		LastCheck:  time.Now(),
		ErrorCount: int(o.errorCount.Load()),
		Uptime:     time.Since(o.startTime),
	}
}

// DataFlow implements component.Discoverable.
func (o *Output) DataFlow() component.FlowMetrics {
	sent := o.messagesSent.Load()
	lastActivity, _ := o.lastActivity.Load().(time.Time)

	var perSecond, bytesPerSecond, errorRate float64
	if uptime := time.Since(o.startTime).Seconds(); uptime > 0 {
		perSecond = float64(sent) / uptime
		bytesPerSecond = float64(o.bytesSent.Load()) / uptime
	}
	if sent > 0 {
		errorRate = float64(o.errorCount.Load()) / float64(sent)
	}

	return component.FlowMetrics{
		MessagesPerSecond: perSecond,
		BytesPerSecond:    bytesPerSecond,
		ErrorRate:         errorRate,
		LastActivity:      lastActivity,
	}
}
