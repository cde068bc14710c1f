// Package scent defines the domain types shared across the pipeline:
// sensor readings, predictions, stabilized results, and broadcast events.
// The package has no dependencies so every component can import it.
package scent

import (
	"time"
)

// Reserved scent labels. ScentNone is the stabilizer's forced-clear label;
// ScentError is the sentinel the predictor boundary emits on failure.
const (
	ScentNone  = "no_scent"
	ScentError = "error"
)

// Reading is one chemical-sensor sample from a device. Channel values are
// pointers so a channel a device never reports stays null on the wire
// instead of collapsing to zero.
type Reading struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	// ReceivedAt is stamped by the pipeline when the reading is ingested
	// and defines receipt order for last-writer-wins commits.
	ReceivedAt time.Time `json:"received_at"`

	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Pressure    *float64 `json:"pressure"`
	Gas         *float64 `json:"gas"`
	VOCRaw      *float64 `json:"voc_raw"`
	NOxRaw      *float64 `json:"nox_raw"`
	NO2         *float64 `json:"no2"`
	Ethanol     *float64 `json:"ethanol"`
	VOC         *float64 `json:"voc"`
	COH2        *float64 `json:"co_h2"`
}

// Value returns the channel value, or 0 if the channel is null.
func Value(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Ptr returns a pointer to v, for building readings.
func Ptr(v float64) *float64 {
	return &v
}

// Prediction is the predictor boundary's result for one reading. A failed
// call is represented by a non-empty Error with Scent set to ScentError and
// zero Confidence; the boundary never returns a Go error for an underlying
// classification failure.
type Prediction struct {
	Scent          string             `json:"predicted_scent"`
	Confidence     float64            `json:"confidence"`
	TopPredictions map[string]float64 `json:"top_predictions,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// Failed reports whether this prediction carries the failure sentinel.
func (p Prediction) Failed() bool {
	return p.Error != ""
}

// ErrorPrediction builds the failure sentinel with the given reason.
func ErrorPrediction(reason string) Prediction {
	return Prediction{
		Scent:      ScentError,
		Confidence: 0.0,
		Error:      reason,
	}
}

// StabilizedResult is the stabilizer's output for one reading: the final
// scent after debouncing, plus the raw prediction it was derived from.
type StabilizedResult struct {
	Scent         string             `json:"scent"`
	Confidence    float64            `json:"confidence"`
	Alternatives  map[string]float64 `json:"top_predictions,omitempty"`
	ForcedNoScent bool               `json:"forced_no_scent,omitempty"`
	Raw           Prediction         `json:"raw_prediction"`
}

// EventType distinguishes the two broadcast event kinds.
type EventType string

// Broadcast event kinds.
const (
	EventSensorData EventType = "sensor"
	EventPrediction EventType = "prediction"
)

// Event is one fan-out message: either a raw reading or a stabilized
// prediction, tagged with its device and receipt time.
type Event struct {
	Type      EventType `json:"type"`
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}
