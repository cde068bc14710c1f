// Package component provides the core component infrastructure for
// ScentStream: discovery, lifecycle management, and structured logging.
//
// # Overview
//
// The package defines abstractions shared by the pipeline's components,
// covering three component types: inputs (HTTP ingestion), processors (the
// scent pipeline), and outputs (WebSocket fan-out, NATS republishing).
// Components are self-describing units that expose metadata, configuration
// schemas, health, and flow metrics through the Discoverable interface.
//
// # Lifecycle Pattern
//
// Components that own goroutines or network resources implement
// LifecycleComponent:
//
//	Initialize() error                  // setup only, no context
//	Start(ctx context.Context) error    // spawn goroutines, ctx passed through
//	Stop(timeout time.Duration) error   // graceful shutdown with deadline
//
// The Manager starts registered components in order and stops them in reverse
// order, cancelling each component's named child context after its Stop
// returns. Components never store contexts; they receive them as parameters.
//
// # Logging
//
// LogHandler is a slog.Handler that tees records to a LogSink, publishing
// each one to the scentstream.logs.{component} NATS subject so operators can
// tail component logs remotely without shell access to the host.
package component
