package component

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// LogSink publishes serialized log entries to a messaging subject.
// natsclient.Client satisfies it.
type LogSink interface {
	Publish(ctx context.Context, subject string, data []byte) error
	IsHealthy() bool
}

// LogEntry is the wire form of one published log record. Operators can tail
// a component's logs remotely by subscribing to <prefix>.<component>.
type LogEntry struct {
	Timestamp string `json:"timestamp"` // RFC3339Nano
	Level     string `json:"level"`
	Component string `json:"component"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
}

// LogHandler is a slog.Handler that forwards every record to the wrapped
// handler and, when the sink is healthy, also publishes it as a LogEntry.
// Publish failures are dropped silently; logging them would feed the handler
// its own errors.
type LogHandler struct {
	inner         slog.Handler
	sink          LogSink
	subjectPrefix string
	// component is the value of the most recent "component" attr bound via
	// WithAttrs, used when a record carries none of its own.
	component string
}

// NewLogHandler wraps inner so records are teed to the sink under
// subjectPrefix. A nil sink disables publishing; local output still works.
func NewLogHandler(inner slog.Handler, sink LogSink, subjectPrefix string) *LogHandler {
	return &LogHandler{
		inner:         inner,
		sink:          sink,
		subjectPrefix: subjectPrefix,
	}
}

func (h *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *LogHandler) Handle(ctx context.Context, rec slog.Record) error {
	if h.sink != nil && h.sink.IsHealthy() {
		h.publish(ctx, rec)
	}
	return h.inner.Handle(ctx, rec)
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.inner = h.inner.WithAttrs(attrs)
	for _, a := range attrs {
		if a.Key == "component" {
			next.component = a.Value.String()
		}
	}
	return &next
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.inner = h.inner.WithGroup(name)
	return &next
}

func (h *LogHandler) publish(ctx context.Context, rec slog.Record) {
	name := h.component
	detail := ""
	rec.Attrs(func(a slog.Attr) bool {
		switch a.Key {
		case "component":
			name = a.Value.String()
		case "error":
			detail = a.Value.String()
		}
		return true
	})
	if name == "" {
		name = "main"
	}

	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	entry := LogEntry{
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		Level:     rec.Level.String(),
		Component: name,
		Message:   rec.Message,
		Detail:    detail,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_ = h.sink.Publish(ctx, fmt.Sprintf("%s.%s", h.subjectPrefix, name), data)
}
