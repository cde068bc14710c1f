package predictor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/scentstream/scent"
)

func sampleReading() scent.Reading {
	return scent.Reading{
		DeviceID:  "esp32-01",
		Timestamp: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
		VOC:       scent.Ptr(12.5),
		NO2:       scent.Ptr(3.1),
	}
}

func TestStatic_FallbackAndQueue(t *testing.T) {
	fallback := scent.Prediction{Scent: "banana", Confidence: 0.8}
	s := NewStatic(fallback)

	got := s.Predict(context.Background(), sampleReading())
	assert.Equal(t, "banana", got.Scent)

	s.Queue(
		scent.Prediction{Scent: "lemon", Confidence: 0.6},
		scent.ErrorPrediction("prediction service unavailable"),
	)

	got = s.Predict(context.Background(), sampleReading())
	assert.Equal(t, "lemon", got.Scent)

	got = s.Predict(context.Background(), sampleReading())
	assert.True(t, got.Failed())

	got = s.Predict(context.Background(), sampleReading())
	assert.Equal(t, "banana", got.Scent, "queue drained, fallback again")

	assert.Equal(t, 4, s.Calls())
	readings := s.Readings()
	require.Len(t, readings, 4)
	assert.Equal(t, "esp32-01", readings[0].DeviceID)
}

func TestSentinels(t *testing.T) {
	u := unavailable()
	assert.Equal(t, scent.ScentError, u.Scent)
	assert.Zero(t, u.Confidence)
	assert.Equal(t, "prediction service unavailable", u.Error)
	assert.True(t, u.Failed())

	m := malformed()
	assert.Equal(t, scent.ScentError, m.Scent)
	assert.Equal(t, "invalid prediction response", m.Error)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdefgh", 3))
}
