// Package config loads and validates the application configuration.
// Configuration is layered: built-in defaults, then JSON files in the
// order they are added, then SCENTSTREAM_* environment overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/c360/scentstream/input/httpingest"
	"github.com/c360/scentstream/output/natspub"
	wsout "github.com/c360/scentstream/output/websocket"
	"github.com/c360/scentstream/stabilizer"
)

// Config is the complete application configuration.
type Config struct {
	Version    string            `json:"version,omitempty"`
	Platform   PlatformConfig    `json:"platform"`
	Log        LogConfig         `json:"log"`
	NATS       NATSConfig        `json:"nats"`
	Predictor  PredictorConfig   `json:"predictor"`
	Stabilizer stabilizer.Config `json:"stabilizer"`
	History    HistoryConfig     `json:"history"`
	Ingest     httpingest.Config `json:"ingest"`
	WebSocket  wsout.Config      `json:"websocket"`
	Publish    natspub.Config    `json:"publish"`
	Metrics    MetricsConfig     `json:"metrics"`
}

// PlatformConfig identifies this deployment. Org and ID become NATS
// subject segments when publishing is enabled.
type PlatformConfig struct {
	Org         string `json:"org"`
	ID          string `json:"id"`
	Environment string `json:"environment,omitempty"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text or json
}

// NATSConfig defines the optional NATS connection.
type NATSConfig struct {
	Enabled       bool          `json:"enabled"`
	URLs          []string      `json:"urls,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	// HealthCheckInterval is how often the client pings the server to
	// verify liveness. Zero keeps the client default.
	HealthCheckInterval time.Duration `json:"health_check_interval,omitempty"`
	Username            string        `json:"username,omitempty"`
	Password            string        `json:"password,omitempty"`
	Token               string        `json:"token,omitempty"`
}

// Predictor modes.
const (
	PredictorModeProcess = "process"
	PredictorModeHTTP    = "http"
)

// PredictorConfig selects and configures the prediction backend.
type PredictorConfig struct {
	Mode    string        `json:"mode"`
	Command string        `json:"command,omitempty"` // process mode
	Args    []string      `json:"args,omitempty"`    // process mode
	URL     string        `json:"url,omitempty"`     // http mode
	Timeout time.Duration `json:"timeout,omitempty"`
}

// HistoryConfig sizes the per-device reading buffer.
type HistoryConfig struct {
	Capacity int `json:"capacity"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// SafeConfig provides thread-safe access to a Config.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig wraps a Config for concurrent readers.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone creates a deep copy via JSON round-trip.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}
	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// Validate checks the configuration for contradictions and normalizes
// the org segment.
func (c *Config) Validate() error {
	if c.Platform.Org == "" {
		return errors.New("platform.org is required")
	}
	c.Platform.Org = strings.ToLower(c.Platform.Org)
	if !isValidSubjectPart(c.Platform.Org) {
		return fmt.Errorf(
			"platform.org %q is not valid for NATS subjects (alphanumeric, dots, dashes, underscores)",
			c.Platform.Org)
	}
	if c.Platform.ID == "" {
		return errors.New("platform.id is required")
	}

	if err := c.validatePredictor(); err != nil {
		return err
	}

	if c.NATS.Enabled && len(c.NATS.URLs) == 0 {
		return errors.New("nats.urls is required when nats is enabled")
	}

	if c.Stabilizer.DropThreshold < 0 || c.Stabilizer.RiseThreshold < 0 {
		return errors.New("stabilizer thresholds cannot be negative")
	}
	if c.Stabilizer.RepeatLimit < 0 {
		return errors.New("stabilizer.repeat_limit cannot be negative")
	}

	if c.History.Capacity < 0 {
		return errors.New("history.capacity cannot be negative")
	}

	for _, port := range []struct {
		name  string
		value int
	}{
		{"ingest.port", c.Ingest.Port},
		{"websocket.port", c.WebSocket.Port},
		{"metrics.port", c.Metrics.Port},
	} {
		if port.value < 0 || port.value > 65535 {
			return fmt.Errorf("%s %d out of range", port.name, port.value)
		}
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q is not one of text, json", c.Log.Format)
	}

	return nil
}

func (c *Config) validatePredictor() error {
	switch c.Predictor.Mode {
	case PredictorModeProcess:
		if c.Predictor.Command == "" {
			return errors.New("predictor.command is required in process mode")
		}
	case PredictorModeHTTP:
		if c.Predictor.URL == "" {
			return errors.New("predictor.url is required in http mode")
		}
	case "":
		return errors.New("predictor.mode is required")
	default:
		return fmt.Errorf("predictor.mode %q is not one of process, http", c.Predictor.Mode)
	}
	if c.Predictor.Timeout < 0 {
		return errors.New("predictor.timeout cannot be negative")
	}
	return nil
}

// isValidSubjectPart reports whether a string can be used as a NATS
// subject segment.
func isValidSubjectPart(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) &&
			r != '-' && r != '_' && r != '.' {
			return false
		}
	}
	return true
}

// Loader handles layered configuration loading.
type Loader struct {
	layers     []string
	validation bool
	envPrefix  string
}

// NewLoader creates a configuration loader with the standard env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "SCENTSTREAM"}
}

// AddLayer adds a configuration file layer. Later layers override
// earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// EnableValidation toggles validation after loading.
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a single file.
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load merges defaults, file layers, and environment overrides.
func (l *Loader) Load() (*Config, error) {
	cfg := Defaults()

	for _, path := range l.layers {
		raw, err := l.loadRawJSON(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		cfg = l.mergeFromMap(cfg, raw)
	}

	l.applyEnvOverrides(cfg)

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Platform: PlatformConfig{
			Org:         "default",
			ID:          "scentstream",
			Environment: "dev",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		NATS: NATSConfig{
			Enabled:             false,
			URLs:                []string{"nats://localhost:4222"},
			MaxReconnects:       -1,
			ReconnectWait:       2 * time.Second,
			HealthCheckInterval: 30 * time.Second,
		},
		Predictor: PredictorConfig{
			Mode:    PredictorModeProcess,
			Command: "python3",
			Args:    []string{"predict.py"},
			Timeout: 30 * time.Second,
		},
		Stabilizer: stabilizer.DefaultConfig(),
		History:    HistoryConfig{Capacity: 100},
		Ingest:     httpingest.DefaultConfig(),
		WebSocket:  wsout.DefaultConfig(),
		Publish:    natspub.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// loadRawJSON loads one configuration file as a map.
func (l *Loader) loadRawJSON(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := validateJSONDepth(data); err != nil {
		return nil, fmt.Errorf("invalid JSON structure: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	l.parseDurations(raw)
	return raw, nil
}

// mergeFromMap overlays a raw map onto a Config, only touching fields
// present in the map.
func (l *Loader) mergeFromMap(base *Config, override map[string]any) *Config {
	if override == nil {
		return base
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return base
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return base
	}

	merged := deepMergeMaps(baseMap, override)
	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return base
	}

	var out Config
	if err := json.Unmarshal(mergedJSON, &out); err != nil {
		return base
	}
	return &out
}

// deepMergeMaps recursively merges two maps with override precedence.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if v == nil {
			continue
		}
		if baseMap, ok := base[k].(map[string]any); ok {
			if overrideMap, ok := v.(map[string]any); ok {
				result[k] = deepMergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// parseDurations converts duration strings to nanoseconds so the JSON
// unmarshal into time.Duration fields succeeds.
func (l *Loader) parseDurations(data map[string]any) {
	if nats, ok := data["nats"].(map[string]any); ok {
		convertDuration(nats, "reconnect_wait")
		convertDuration(nats, "health_check_interval")
	}
	if pred, ok := data["predictor"].(map[string]any); ok {
		convertDuration(pred, "timeout")
	}
}

func convertDuration(section map[string]any, key string) {
	if raw, ok := section[key].(string); ok {
		if d, err := time.ParseDuration(raw); err == nil {
			section[key] = d.Nanoseconds()
		}
	}
}

// applyEnvOverrides applies SCENTSTREAM_* environment variables on top
// of the merged configuration.
func (l *Loader) applyEnvOverrides(cfg *Config) {
	set := func(suffix string, apply func(string)) {
		key := l.envPrefix + suffix
		val := os.Getenv(key)
		if val == "" {
			return
		}
		if err := validateEnvVar(key, val); err != nil {
			return
		}
		apply(val)
	}

	set("_PLATFORM_ORG", func(v string) { cfg.Platform.Org = v })
	set("_PLATFORM_ID", func(v string) { cfg.Platform.ID = v })
	set("_LOG_LEVEL", func(v string) { cfg.Log.Level = v })
	set("_LOG_FORMAT", func(v string) { cfg.Log.Format = v })
	set("_NATS_URLS", func(v string) {
		cfg.NATS.Enabled = true
		cfg.NATS.URLs = strings.Split(v, ",")
	})
	set("_NATS_USERNAME", func(v string) { cfg.NATS.Username = v })
	set("_NATS_PASSWORD", func(v string) { cfg.NATS.Password = v })
	set("_NATS_TOKEN", func(v string) { cfg.NATS.Token = v })
	set("_PREDICTOR_COMMAND", func(v string) {
		cfg.Predictor.Mode = PredictorModeProcess
		cfg.Predictor.Command = v
	})
	set("_PREDICTOR_URL", func(v string) {
		cfg.Predictor.Mode = PredictorModeHTTP
		cfg.Predictor.URL = v
	})
	set("_INGEST_PORT", func(v string) {
		if port, err := parsePort(v); err == nil {
			cfg.Ingest.Port = port
		}
	})
	set("_WEBSOCKET_PORT", func(v string) {
		if port, err := parsePort(v); err == nil {
			cfg.WebSocket.Port = port
		}
	})
}

func parsePort(s string) (int, error) {
	var port int
	if _, err := fmt.Sscanf(s, "%d", &port); err != nil {
		return 0, err
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

// SaveToFile writes the configuration as indented JSON.
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return safeWriteFile(path, data)
}

// String returns an indented JSON rendering with credentials redacted.
func (c *Config) String() string {
	clone := c.Clone()
	if clone.NATS.Password != "" {
		clone.NATS.Password = "***"
	}
	if clone.NATS.Token != "" {
		clone.NATS.Token = "***"
	}
	data, _ := json.MarshalIndent(clone, "", "  ")
	return string(data)
}

// UnmarshalJSON accepts duration fields as either strings ("30s") or
// nanosecond numbers.
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		NATS struct {
			Enabled             bool     `json:"enabled"`
			URLs                []string `json:"urls,omitempty"`
			MaxReconnects       int      `json:"max_reconnects,omitempty"`
			ReconnectWait       any      `json:"reconnect_wait,omitempty"`
			HealthCheckInterval any      `json:"health_check_interval,omitempty"`
			Username            string   `json:"username,omitempty"`
			Password            string   `json:"password,omitempty"`
			Token               string   `json:"token,omitempty"`
		} `json:"nats"`
		Predictor struct {
			Mode    string   `json:"mode"`
			Command string   `json:"command,omitempty"`
			Args    []string `json:"args,omitempty"`
			URL     string   `json:"url,omitempty"`
			Timeout any      `json:"timeout,omitempty"`
		} `json:"predictor"`
		*Alias
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	c.NATS.Enabled = aux.NATS.Enabled
	c.NATS.URLs = aux.NATS.URLs
	c.NATS.MaxReconnects = aux.NATS.MaxReconnects
	c.NATS.Username = aux.NATS.Username
	c.NATS.Password = aux.NATS.Password
	c.NATS.Token = aux.NATS.Token
	wait, err := asDuration(aux.NATS.ReconnectWait)
	if err != nil {
		return fmt.Errorf("nats.reconnect_wait: %w", err)
	}
	c.NATS.ReconnectWait = wait
	interval, err := asDuration(aux.NATS.HealthCheckInterval)
	if err != nil {
		return fmt.Errorf("nats.health_check_interval: %w", err)
	}
	c.NATS.HealthCheckInterval = interval

	c.Predictor.Mode = aux.Predictor.Mode
	c.Predictor.Command = aux.Predictor.Command
	c.Predictor.Args = aux.Predictor.Args
	c.Predictor.URL = aux.Predictor.URL
	timeout, err := asDuration(aux.Predictor.Timeout)
	if err != nil {
		return fmt.Errorf("predictor.timeout: %w", err)
	}
	c.Predictor.Timeout = timeout

	return nil
}

func asDuration(v any) (time.Duration, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case string:
		return time.ParseDuration(val)
	case float64:
		return time.Duration(val), nil
	default:
		return 0, fmt.Errorf("unsupported duration type %T", v)
	}
}
