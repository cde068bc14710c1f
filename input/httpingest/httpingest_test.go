package httpingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/scentstream/broadcast"
	"github.com/c360/scentstream/pipeline"
	"github.com/c360/scentstream/predictor"
	"github.com/c360/scentstream/scent"
)

func newTestServer(t *testing.T, pred predictor.Predictor) (*Ingest, *httptest.Server) {
	t.Helper()

	b := broadcast.New()
	t.Cleanup(b.Close)

	p, err := pipeline.New(pipeline.Deps{
		Config:      pipeline.DefaultConfig(),
		Predictor:   pred,
		Broadcaster: b,
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop(time.Second) })

	s, err := New(Deps{Config: DefaultConfig(), Pipeline: p})
	require.NoError(t, err)
	s.running.Store(true)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func postReading(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/sensor-data", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestIngestEndpoint_Success(t *testing.T) {
	fake := predictor.NewStatic(scent.Prediction{
		Scent:          "banana",
		Confidence:     0.9,
		TopPredictions: map[string]float64{"banana": 0.9},
	})
	_, srv := newTestServer(t, fake)

	resp := postReading(t, srv, `{"device_id":"esp32-01","voc":12.5,"no2":3.0,"temperature":null}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "Sensor data received successfully", body["message"])
	assert.Equal(t, "esp32-01", body["device_id"])

	prediction, ok := body["prediction"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "banana", prediction["scent"])
	assert.Equal(t, 0.9, prediction["confidence"])
}

func TestIngestEndpoint_MissingDeviceID(t *testing.T) {
	fake := predictor.NewStatic(scent.Prediction{Scent: "banana", Confidence: 0.9})
	_, srv := newTestServer(t, fake)

	resp := postReading(t, srv, `{"voc":12.5}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "device_id is required", body["error"])
	assert.Equal(t, float64(http.StatusBadRequest), body["status"])
	assert.Zero(t, fake.Calls())
}

func TestIngestEndpoint_InvalidJSON(t *testing.T) {
	fake := predictor.NewStatic(scent.Prediction{Scent: "banana", Confidence: 0.9})
	_, srv := newTestServer(t, fake)

	resp := postReading(t, srv, `{device_id: nope}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "invalid JSON body", body["error"])
}

func TestIngestEndpoint_BodyTooLarge(t *testing.T) {
	fake := predictor.NewStatic(scent.Prediction{Scent: "banana", Confidence: 0.9})

	b := broadcast.New()
	t.Cleanup(b.Close)
	p, err := pipeline.New(pipeline.Deps{Predictor: fake, Broadcaster: b})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop(time.Second) })

	cfg := DefaultConfig()
	cfg.MaxRequestSize = 64
	s, err := New(Deps{Config: cfg, Pipeline: p})
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	huge := fmt.Sprintf(`{"device_id":"d1","note":%q}`, strings.Repeat("x", 200))
	resp := postReading(t, srv, huge)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	resp.Body.Close()
}

func TestHistoryEndpoint(t *testing.T) {
	fake := predictor.NewStatic(scent.Prediction{Scent: "banana", Confidence: 0.9})
	_, srv := newTestServer(t, fake)

	for i := 0; i < 5; i++ {
		resp := postReading(t, srv, fmt.Sprintf(`{"device_id":"d1","voc":%d}`, 10+i))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/api/sensor-data/d1?limit=3")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "d1", body["device_id"])
	assert.Equal(t, float64(3), body["count"])
	data, ok := body["data"].([]any)
	require.True(t, ok)
	require.Len(t, data, 3)
	last := data[2].(map[string]any)
	assert.Equal(t, 14.0, last["voc"], "newest reading comes last")
}

func TestHistoryEndpoint_Errors(t *testing.T) {
	fake := predictor.NewStatic(scent.Prediction{Scent: "banana", Confidence: 0.9})
	_, srv := newTestServer(t, fake)

	resp, err := http.Get(srv.URL + "/api/sensor-data/ghost")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	r := postReading(t, srv, `{"device_id":"d1","voc":10}`)
	r.Body.Close()

	resp, err = http.Get(srv.URL + "/api/sensor-data/d1?limit=bogus")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestSummaryEndpoint(t *testing.T) {
	fake := predictor.NewStatic(scent.Prediction{Scent: "banana", Confidence: 0.9})
	_, srv := newTestServer(t, fake)

	for _, dev := range []string{"d1", "d2"} {
		resp := postReading(t, srv, fmt.Sprintf(`{"device_id":%q,"voc":10}`, dev))
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/api/sensor-data")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(2), body["count"])
	devices, ok := body["devices"].([]any)
	require.True(t, ok)
	require.Len(t, devices, 2)
	first := devices[0].(map[string]any)
	assert.Equal(t, "d1", first["device_id"])
	assert.Equal(t, float64(1), first["count"])
}

func TestPredictionsEndpoints(t *testing.T) {
	fake := predictor.NewStatic(scent.Prediction{
		Scent:          "coconut",
		Confidence:     1.0,
		TopPredictions: map[string]float64{"coconut": 1.0},
	})
	_, srv := newTestServer(t, fake)

	resp := postReading(t, srv, `{"device_id":"d1","voc":10}`)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/predictions")
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Equal(t, float64(1), body["count"])
	predictions, ok := body["predictions"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, predictions, "d1")

	resp, err = http.Get(srv.URL + "/api/predictions/d1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	cur := decodeBody(t, resp)
	assert.Equal(t, "coconut", cur["scent"])
	control, ok := cur["emitter_control"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(200), control["2"], "coconut drives channel 2 at full intensity")

	resp, err = http.Get(srv.URL + "/api/predictions/ghost")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestHealthEndpoint(t *testing.T) {
	fake := predictor.NewStatic(scent.Prediction{Scent: "banana", Confidence: 0.9})
	_, srv := newTestServer(t, fake)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestCORSHeaders(t *testing.T) {
	fake := predictor.NewStatic(scent.Prediction{Scent: "banana", Confidence: 0.9})
	_, srv := newTestServer(t, fake)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/sensor-data", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://dashboard.local")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "http://dashboard.local", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestLifecycle_RealListener(t *testing.T) {
	fake := predictor.NewStatic(scent.Prediction{Scent: "banana", Confidence: 0.9})

	b := broadcast.New()
	t.Cleanup(b.Close)
	p, err := pipeline.New(pipeline.Deps{Predictor: fake, Broadcaster: b})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop(time.Second) })

	cfg := DefaultConfig()
	cfg.Port = 0
	s, err := New(Deps{Config: cfg, Pipeline: p})
	require.NoError(t, err)
	require.NoError(t, s.Initialize())
	require.NoError(t, s.Start(context.Background()))

	addr := s.Address()
	require.NotEmpty(t, addr)

	resp, err := http.Post("http://"+addr+"/api/sensor-data", "application/json",
		bytes.NewReader([]byte(`{"device_id":"d1","voc":10}`)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	assert.True(t, s.Health().Healthy)
	assert.Equal(t, "input", s.Meta().Type)
	assert.Positive(t, s.DataFlow().MessagesPerSecond)

	require.NoError(t, s.Stop(time.Second))
	require.NoError(t, s.Stop(time.Second), "stop is idempotent")
	assert.False(t, s.Health().Healthy)
}
