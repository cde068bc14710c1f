// Package natsclient provides managed NATS connectivity for ScentStream.
//
// # Overview
//
// The Client wraps a nats.Conn with connection lifecycle management, a
// circuit breaker for repeated connection failures, periodic health
// monitoring, and optional Prometheus metrics for connection status,
// round-trip time, and reconnect counts.
//
// # Circuit Breaker
//
// After a configurable number of consecutive failures (default 5) the
// circuit opens and connection attempts are rejected immediately with
// ErrCircuitOpen. The backoff before the next test doubles per round up to
// a maximum (default one minute). A successful connection resets the
// circuit.
//
// # Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("scentstream"),
//	    natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	err = client.Publish(ctx, "scent.predictions.device-001", payload)
//
// Close drains outstanding messages with a timeout and clears credentials
// from memory. It is safe to call more than once.
package natsclient
