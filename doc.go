// Package scentstream provides a streaming pipeline for electronic-nose
// telemetry: it ingests chemical-sensor readings from independent devices,
// obtains a scent classification for each reading from an external predictor,
// stabilizes that classification against sensor noise, encodes the stabilized
// scent into an 8-channel emitter control vector, and fans every raw reading
// and stabilized result out to live subscribers.
//
// # Architecture
//
// The pipeline is a chain of small components connected by an in-process
// broadcast bus:
//
//	┌──────────┐   ┌──────────┐   ┌────────────┐   ┌─────────┐
//	│  Ingest  │ → │ Predictor│ → │ Stabilizer │ → │ Emitter │
//	│  (HTTP)  │   │ (process │   │ (per-device│   │ encoder │
//	│          │   │  or HTTP)│   │  debounce) │   │         │
//	└────┬─────┘   └──────────┘   └─────┬──────┘   └────┬────┘
//	     │ raw readings                 │ stabilized results
//	     └──────────────┬───────────────┴────────────────┘
//	                    ↓
//	            ┌───────────────┐
//	            │  Broadcaster  │  multi-subscriber fan-out
//	            └───┬───────┬───┘
//	                ↓       ↓
//	          WebSocket   NATS
//	           clients   subjects
//
// Per-device state (bounded reading history, stabilizer state, current
// stabilized prediction) lives behind one exclusive critical section per
// device, so unrelated devices are processed fully in parallel. The slow
// predictor call runs outside the device lock; commits are last-writer-wins
// by receipt order so an older prediction never overwrites a newer one.
//
// # Packages
//
// Domain:
//   - scent: reading, prediction and event types shared across the pipeline
//   - history: per-device bounded FIFO reading buffer
//   - predictor: scent classification boundary (subprocess, HTTP, static)
//   - stabilizer: per-device debounce/hysteresis state machine
//   - emitter: scent → 8-channel actuator control vector encoding
//   - broadcast: transport-agnostic multi-subscriber fan-out
//   - pipeline: orchestration and per-device state store
//
// Transports:
//   - input/httpingest: HTTP ingestion and read API
//   - output/websocket: WebSocket fan-out to live clients
//   - output/natspub: republish to NATS subjects
//
// Infrastructure:
//   - component: lifecycle and discovery interfaces
//   - config: JSON configuration with env overrides
//   - errors: classified error handling (transient/invalid/fatal)
//   - metric: Prometheus registry and core pipeline metrics
//   - natsclient: NATS connection management
//   - pkg/retry: exponential backoff for transient failures
package scentstream
