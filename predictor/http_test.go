package predictor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/scentstream/pkg/retry"
	"github.com/c360/scentstream/scent"
)

func quickRetry() retry.Config {
	return retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestNewHTTP_RequiresURL(t *testing.T) {
	_, err := NewHTTP(HTTPConfig{})
	assert.Error(t, err)
}

func TestHTTP_Success(t *testing.T) {
	var gotBody scent.Reading
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]any{
			"predicted_scent": "grape",
			"confidence":      0.72,
			"top_predictions": map[string]float64{"grape": 0.72, "orange": 0.2},
		})
	}))
	defer srv.Close()

	h, err := NewHTTP(HTTPConfig{URL: srv.URL, Retry: quickRetry()})
	require.NoError(t, err)

	pred := h.Predict(context.Background(), sampleReading())

	assert.Equal(t, "grape", pred.Scent)
	assert.Equal(t, 0.72, pred.Confidence)
	assert.Equal(t, "esp32-01", gotBody.DeviceID)
	assert.Equal(t, 12.5, scent.Value(gotBody.VOC))
}

func TestHTTP_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"predicted_scent": "lemon",
			"confidence":      0.6,
		})
	}))
	defer srv.Close()

	h, err := NewHTTP(HTTPConfig{URL: srv.URL, Retry: quickRetry()})
	require.NoError(t, err)

	pred := h.Predict(context.Background(), sampleReading())

	assert.Equal(t, "lemon", pred.Scent)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTP_ExhaustedRetriesReturnUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h, err := NewHTTP(HTTPConfig{URL: srv.URL, Retry: quickRetry()})
	require.NoError(t, err)

	pred := h.Predict(context.Background(), sampleReading())

	assert.Equal(t, scent.ScentError, pred.Scent)
	assert.Equal(t, "prediction service unavailable", pred.Error)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTP_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad reading", http.StatusBadRequest)
	}))
	defer srv.Close()

	h, err := NewHTTP(HTTPConfig{URL: srv.URL, Retry: quickRetry()})
	require.NoError(t, err)

	pred := h.Predict(context.Background(), sampleReading())

	assert.Equal(t, "invalid prediction response", pred.Error)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTP_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>nope</html>"))
	}))
	defer srv.Close()

	h, err := NewHTTP(HTTPConfig{URL: srv.URL, Retry: quickRetry()})
	require.NoError(t, err)

	pred := h.Predict(context.Background(), sampleReading())
	assert.Equal(t, "invalid prediction response", pred.Error)
}

func TestHTTP_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close()

	h, err := NewHTTP(HTTPConfig{URL: srv.URL, Retry: quickRetry()})
	require.NoError(t, err)

	pred := h.Predict(context.Background(), sampleReading())
	assert.Equal(t, "prediction service unavailable", pred.Error)
}
