// Package metric provides Prometheus-based metrics collection and an HTTP
// server for ScentStream monitoring and observability.
//
// The package offers a centralized metrics registry managing both core
// pipeline metrics (readings ingested, predictions, stabilizer overrides,
// broadcast fan-out, NATS health) and custom component-specific metrics. It
// includes an HTTP server exposing metrics in Prometheus format.
//
// # Architecture
//
// The package follows a three-layer design:
//
//  1. Core Metrics: Pipeline-level metrics automatically registered (Metrics type)
//  2. Component Registry: Extensible registration for component-specific metrics (MetricsRegistrar interface)
//  3. HTTP Server: Metrics endpoint with health checks (Server type)
//
// # Basic Usage
//
// Setting up metrics collection and HTTP server:
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        log.Printf("Metrics server error: %v", err)
//	    }
//	}()
//
//	// Record core pipeline metrics
//	core := registry.CoreMetrics()
//	core.RecordReadingIngested("device-001")
//	core.RecordPrediction("device-001", "banana")
//	core.RecordStabilizerOverride("device-001", "repeat")
//
// Component-specific metrics register through the MetricsRegistrar interface
// under a component.metric key, which rejects duplicates before they reach
// the underlying Prometheus registry.
package metric
