package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/scentstream/broadcast"
	"github.com/c360/scentstream/pipeline"
	"github.com/c360/scentstream/predictor"
	"github.com/c360/scentstream/scent"
)

func newTestOutput(t *testing.T, b *broadcast.Broadcaster, p *pipeline.Pipeline) *Output {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Port = 0
	o, err := New(Deps{Config: cfg, Broadcaster: b, Pipeline: p})
	require.NoError(t, err)
	require.NoError(t, o.Initialize())
	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(func() { _ = o.Stop(time.Second) })
	return o
}

func dial(t *testing.T, o *Output) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial("ws://"+o.Address()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *gws.Conn) scent.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	var event scent.Event
	require.NoError(t, json.Unmarshal(frame, &event))
	return event
}

func TestNew_RequiresBroadcaster(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestOutput_StreamsEvents(t *testing.T) {
	b := broadcast.New()
	t.Cleanup(b.Close)
	o := newTestOutput(t, b, nil)

	conn := dial(t, o)

	// Give the server a moment to register the client before publishing.
	require.Eventually(t, func() bool {
		return o.clientCount() == 1
	}, time.Second, 10*time.Millisecond)

	b.Publish(scent.Event{
		Type:      scent.EventSensorData,
		DeviceID:  "esp32-01",
		Timestamp: time.Now(),
		Data:      map[string]any{"voc": 12.5},
	})

	event := readEvent(t, conn)
	assert.Equal(t, scent.EventSensorData, event.Type)
	assert.Equal(t, "esp32-01", event.DeviceID)
}

func TestOutput_SnapshotOnConnect(t *testing.T) {
	b := broadcast.New()
	t.Cleanup(b.Close)

	fake := predictor.NewStatic(scent.Prediction{Scent: "banana", Confidence: 0.9})
	p, err := pipeline.New(pipeline.Deps{Predictor: fake, Broadcaster: b})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop(time.Second) })

	_, err = p.Ingest(context.Background(), scent.Reading{DeviceID: "d1", VOC: scent.Ptr(10)})
	require.NoError(t, err)

	o := newTestOutput(t, b, p)
	conn := dial(t, o)

	event := readEvent(t, conn)
	assert.Equal(t, scent.EventPrediction, event.Type)
	assert.Equal(t, "d1", event.DeviceID)

	data, err := json.Marshal(event.Data)
	require.NoError(t, err)
	var cur pipeline.Current
	require.NoError(t, json.Unmarshal(data, &cur))
	assert.Equal(t, "banana", cur.Scent)
}

func TestOutput_MultipleClients(t *testing.T) {
	b := broadcast.New()
	t.Cleanup(b.Close)
	o := newTestOutput(t, b, nil)

	first := dial(t, o)
	second := dial(t, o)

	require.Eventually(t, func() bool {
		return o.clientCount() == 2
	}, time.Second, 10*time.Millisecond)

	b.Publish(scent.Event{Type: scent.EventPrediction, DeviceID: "d1", Timestamp: time.Now()})

	assert.Equal(t, "d1", readEvent(t, first).DeviceID)
	assert.Equal(t, "d1", readEvent(t, second).DeviceID)
}

func TestOutput_ClientDisconnect(t *testing.T) {
	b := broadcast.New()
	t.Cleanup(b.Close)
	o := newTestOutput(t, b, nil)

	conn := dial(t, o)
	require.Eventually(t, func() bool {
		return o.clientCount() == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return o.clientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Publishing with no clients must not block or panic.
	b.Publish(scent.Event{Type: scent.EventSensorData, DeviceID: "d1", Timestamp: time.Now()})
}

func TestOutput_Lifecycle(t *testing.T) {
	b := broadcast.New()
	t.Cleanup(b.Close)

	cfg := DefaultConfig()
	cfg.Port = 0
	o, err := New(Deps{Config: cfg, Broadcaster: b})
	require.NoError(t, err)
	require.NoError(t, o.Initialize())

	require.NoError(t, o.Start(context.Background()))
	require.NoError(t, o.Start(context.Background()), "second start is a no-op")
	assert.True(t, o.Health().Healthy)
	assert.Equal(t, "output", o.Meta().Type)
	assert.Contains(t, o.ConfigSchema().Properties, "port")

	require.NoError(t, o.Stop(time.Second))
	require.NoError(t, o.Stop(time.Second), "stop is idempotent")
	assert.False(t, o.Health().Healthy)
}

func TestInitialize_RejectsBadConfig(t *testing.T) {
	b := broadcast.New()
	t.Cleanup(b.Close)

	cfg := DefaultConfig()
	cfg.Port = 70000
	o, err := New(Deps{Config: cfg, Broadcaster: b})
	require.NoError(t, err)
	assert.Error(t, o.Initialize())
}
