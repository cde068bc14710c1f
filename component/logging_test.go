package component

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSink captures published log entries.
type fakeSink struct {
	healthy  bool
	pubErr   error
	subjects []string
	payloads [][]byte
}

func (s *fakeSink) Publish(_ context.Context, subject string, data []byte) error {
	if s.pubErr != nil {
		return s.pubErr
	}
	s.subjects = append(s.subjects, subject)
	s.payloads = append(s.payloads, data)
	return nil
}

func (s *fakeSink) IsHealthy() bool { return s.healthy }

func newTestLogHandler(sink LogSink) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(NewLogHandler(inner, sink, "scentstream.logs")), &buf
}

func TestLogHandler_PublishesEntries(t *testing.T) {
	sink := &fakeSink{healthy: true}
	logger, buf := newTestLogHandler(sink)

	logger.Info("pipeline started", "component", "pipeline")

	require.Len(t, sink.subjects, 1)
	assert.Equal(t, "scentstream.logs.pipeline", sink.subjects[0])

	var entry LogEntry
	require.NoError(t, json.Unmarshal(sink.payloads[0], &entry))
	assert.Equal(t, "pipeline", entry.Component)
	assert.Equal(t, "pipeline started", entry.Message)
	assert.Equal(t, "INFO", entry.Level)
	assert.Empty(t, entry.Detail)

	// Local output is unaffected
	assert.Contains(t, buf.String(), "pipeline started")
}

func TestLogHandler_ComponentFromWithAttrs(t *testing.T) {
	sink := &fakeSink{healthy: true}
	logger, _ := newTestLogHandler(sink)

	logger.With("component", "nats-publisher").Warn("publish slow")

	require.Len(t, sink.subjects, 1)
	assert.Equal(t, "scentstream.logs.nats-publisher", sink.subjects[0])
}

func TestLogHandler_ErrorDetail(t *testing.T) {
	sink := &fakeSink{healthy: true}
	logger, _ := newTestLogHandler(sink)

	logger.Error("predict failed", "component", "pipeline", "error", errors.New("timeout"))

	require.Len(t, sink.payloads, 1)
	var entry LogEntry
	require.NoError(t, json.Unmarshal(sink.payloads[0], &entry))
	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, "timeout", entry.Detail)
}

func TestLogHandler_SkipsUnhealthySink(t *testing.T) {
	sink := &fakeSink{healthy: false}
	logger, buf := newTestLogHandler(sink)

	logger.Info("dropped remotely", "component", "pipeline")

	assert.Empty(t, sink.subjects)
	// Local output still happens
	assert.Contains(t, buf.String(), "dropped remotely")
}

func TestLogHandler_DefaultsComponent(t *testing.T) {
	sink := &fakeSink{healthy: true}
	logger, _ := newTestLogHandler(sink)

	logger.Info("no component attr")

	require.Len(t, sink.subjects, 1)
	assert.Equal(t, "scentstream.logs.main", sink.subjects[0])
}

func TestLogHandler_PublishErrorDoesNotFailHandle(t *testing.T) {
	sink := &fakeSink{healthy: true, pubErr: errors.New("not connected")}
	logger, buf := newTestLogHandler(sink)

	logger.Info("still logged locally", "component", "pipeline")

	assert.Contains(t, buf.String(), "still logged locally")
}
