// Package main is the entry point for the ScentStream server. It wires
// the ingest, pipeline, and output components together from the loaded
// configuration and runs them until interrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/scentstream/broadcast"
	"github.com/c360/scentstream/component"
	"github.com/c360/scentstream/config"
	"github.com/c360/scentstream/input/httpingest"
	"github.com/c360/scentstream/metric"
	"github.com/c360/scentstream/natsclient"
	"github.com/c360/scentstream/output/natspub"
	wsout "github.com/c360/scentstream/output/websocket"
	"github.com/c360/scentstream/pipeline"
	"github.com/c360/scentstream/predictor"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "scentstream"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.InitConfig {
		defaults := config.Defaults()
		if err := defaults.SaveToFile(cliCfg.ConfigPath); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
		fmt.Printf("wrote default configuration to %s\n", cliCfg.ConfigPath)
		return nil
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	slog.Info("starting ScentStream",
		"version", Version,
		"build_time", BuildTime,
		"org", cfg.Platform.Org,
		"platform", cfg.Platform.ID,
		"config_path", cliCfg.ConfigPath)

	ctx := context.Background()
	metricsRegistry := metric.NewMetricsRegistry()
	broadcaster := broadcast.New(
		broadcast.WithLogger(logger.With("component", "broadcast")),
		broadcast.WithMetrics(metricsRegistry),
	)
	defer broadcaster.Close()

	natsClient, err := connectNATS(ctx, cfg, metricsRegistry)
	if err != nil {
		return err
	}
	if natsClient != nil {
		defer func() { _ = natsClient.Close(ctx) }()

		// Tee logs to scentstream.logs.<component> so operators can tail
		// them over NATS.
		logger = slog.New(component.NewLogHandler(logger.Handler(), natsClient, "scentstream.logs"))
		slog.SetDefault(logger)
	}

	pred, err := buildPredictor(cfg, logger)
	if err != nil {
		return fmt.Errorf("create predictor: %w", err)
	}

	manager, err := buildComponents(cfg, pred, broadcaster, natsClient, metricsRegistry, logger)
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		metricsServer := metric.NewServer(cfg.Metrics.Port, "/metrics", metricsRegistry)
		go func() {
			// Start blocks until the server exits.
			if err := metricsServer.Start(); err != nil {
				slog.Error("metrics server failed", "error", err)
			}
		}()
		slog.Info("metrics server listening", "address", metricsServer.Address())
		defer func() { _ = metricsServer.Stop() }()
	}

	return runWithSignalHandling(ctx, manager, cliCfg.ShutdownTimeout)
}

// loadConfig loads the layered configuration. A missing config file is
// only an error when the path was given explicitly.
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	loader.EnableValidation(true)

	if cliCfg.ConfigPath != "" {
		if _, err := os.Stat(cliCfg.ConfigPath); err != nil {
			if cliCfg.ConfigExplicit {
				return nil, fmt.Errorf("config file not found: %s", cliCfg.ConfigPath)
			}
		} else {
			loader.AddLayer(cliCfg.ConfigPath)
		}
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}
	return cfg, nil
}

// connectNATS establishes the optional NATS connection. Returns nil
// when NATS is disabled.
func connectNATS(
	ctx context.Context,
	cfg *config.Config,
	registry *metric.MetricsRegistry,
) (*natsclient.Client, error) {
	if !cfg.NATS.Enabled {
		slog.Info("nats disabled, skipping event republishing")
		return nil, nil
	}

	opts := []natsclient.ClientOption{
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithMetrics(registry),
	}
	if cfg.NATS.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.NATS.ReconnectWait))
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}

	client, err := natsclient.NewClient(cfg.NATS.URLs[0], opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}
	if cfg.NATS.HealthCheckInterval > 0 {
		client.WithHealthCheck(cfg.NATS.HealthCheckInterval)
	}

	slog.Info("connecting to NATS", "url", cfg.NATS.URLs[0])
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}

	return client, nil
}

// buildPredictor creates the prediction backend named by the config.
func buildPredictor(cfg *config.Config, logger *slog.Logger) (predictor.Predictor, error) {
	switch cfg.Predictor.Mode {
	case config.PredictorModeProcess:
		return predictor.NewProcess(predictor.ProcessConfig{
			Command: cfg.Predictor.Command,
			Args:    cfg.Predictor.Args,
			Timeout: cfg.Predictor.Timeout,
			Logger:  logger.With("component", "predictor"),
		})
	case config.PredictorModeHTTP:
		return predictor.NewHTTP(predictor.HTTPConfig{
			URL:     cfg.Predictor.URL,
			Timeout: cfg.Predictor.Timeout,
			Logger:  logger.With("component", "predictor"),
		})
	default:
		return nil, fmt.Errorf("unknown predictor mode %q", cfg.Predictor.Mode)
	}
}

// buildComponents constructs the pipeline and its surrounding
// components, registered in start order.
func buildComponents(
	cfg *config.Config,
	pred predictor.Predictor,
	broadcaster *broadcast.Broadcaster,
	natsClient *natsclient.Client,
	metricsRegistry *metric.MetricsRegistry,
	logger *slog.Logger,
) (*component.Manager, error) {
	pipe, err := pipeline.New(pipeline.Deps{
		Config: pipeline.Config{
			HistoryCapacity: cfg.History.Capacity,
			Stabilizer:      cfg.Stabilizer,
		},
		Predictor:       pred,
		Broadcaster:     broadcaster,
		MetricsRegistry: metricsRegistry,
		Logger:          logger.With("component", "pipeline"),
	})
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	ingest, err := httpingest.New(httpingest.Deps{
		Config:          cfg.Ingest,
		Pipeline:        pipe,
		MetricsRegistry: metricsRegistry,
		Logger:          logger.With("component", "http-ingest"),
	})
	if err != nil {
		return nil, fmt.Errorf("create http ingest: %w", err)
	}

	wsOutput, err := wsout.New(wsout.Deps{
		Config:          cfg.WebSocket,
		Broadcaster:     broadcaster,
		Pipeline:        pipe,
		MetricsRegistry: metricsRegistry,
		Logger:          logger.With("component", "websocket-output"),
	})
	if err != nil {
		return nil, fmt.Errorf("create websocket output: %w", err)
	}

	manager := component.NewManager(logger.With("component", "manager"))
	for _, comp := range []component.LifecycleComponent{pipe, wsOutput, ingest} {
		if err := manager.Register(comp); err != nil {
			return nil, fmt.Errorf("register component: %w", err)
		}
	}

	if natsClient != nil {
		pubCfg := cfg.Publish
		if pubCfg.Org == "" {
			pubCfg.Org = cfg.Platform.Org
		}
		if pubCfg.Platform == "" {
			pubCfg.Platform = cfg.Platform.ID
		}
		pub, err := natspub.New(natspub.Deps{
			Config:          pubCfg,
			Broadcaster:     broadcaster,
			NATSClient:      natsClient,
			MetricsRegistry: metricsRegistry,
			Logger:          logger.With("component", "nats-publisher"),
		})
		if err != nil {
			return nil, fmt.Errorf("create nats publisher: %w", err)
		}
		if err := manager.Register(pub); err != nil {
			return nil, fmt.Errorf("register nats publisher: %w", err)
		}
	}

	return manager, nil
}

// runWithSignalHandling starts all components and blocks until a
// shutdown signal arrives.
func runWithSignalHandling(ctx context.Context, manager *component.Manager, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := manager.Start(signalCtx); err != nil {
		return fmt.Errorf("start components: %w", err)
	}
	slog.Info("ScentStream started")

	<-signalCtx.Done()
	slog.Info("received shutdown signal")

	if err := manager.Stop(shutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("ScentStream shutdown complete")
	return nil
}
