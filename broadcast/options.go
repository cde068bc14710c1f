package broadcast

import (
	"log/slog"

	"github.com/c360/scentstream/metric"
)

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithBufferSize sets the per-subscriber buffer depth. Values below one
// are ignored.
func WithBufferSize(n int) Option {
	return func(b *Broadcaster) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broadcaster) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics wires the broadcaster's counters into the registry's core
// metrics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(b *Broadcaster) {
		if registry != nil {
			b.metrics = registry.CoreMetrics()
		}
	}
}
