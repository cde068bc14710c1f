// Package predictor is the boundary to the out-of-process scent
// classifier. Two production adapters exist: Process spawns the
// classifier command per reading and speaks JSON over stdin/stdout, and
// HTTP posts readings to a classifier service. Both convert every
// failure mode (spawn error, non-zero exit, malformed output, timeout,
// transport error) into a sentinel error prediction instead of
// returning an error, so a broken classifier degrades the pipeline's
// output rather than aborting it.
package predictor

import (
	"context"
	"sync"
	"time"

	"github.com/c360/scentstream/errors"
	"github.com/c360/scentstream/scent"
)

// DefaultTimeout bounds a single classification call.
const DefaultTimeout = 30 * time.Second

// Predictor classifies a single sensor reading. Implementations never
// return an error; failures surface as a prediction with the error
// label and a reason (see scent.ErrorPrediction).
type Predictor interface {
	Predict(ctx context.Context, reading scent.Reading) scent.Prediction
}

// unavailable is the sentinel for a classifier that could not be
// reached or did not exit cleanly.
func unavailable() scent.Prediction {
	return scent.ErrorPrediction(errors.ErrPredictorUnavailable.Error())
}

// malformed is the sentinel for a classifier that answered with
// something other than a valid prediction.
func malformed() scent.Prediction {
	return scent.ErrorPrediction(errors.ErrPredictorResponse.Error())
}

// Static is a canned Predictor for tests and dry runs. It pops queued
// predictions in order and falls back to a fixed one when the queue is
// empty.
type Static struct {
	mu       sync.Mutex
	queue    []scent.Prediction
	fallback scent.Prediction
	calls    int
	readings []scent.Reading
}

// NewStatic creates a Static predictor that always answers fallback
// until predictions are queued.
func NewStatic(fallback scent.Prediction) *Static {
	return &Static{fallback: fallback}
}

// Queue appends predictions to be returned, in order, before the
// fallback applies again.
func (s *Static) Queue(preds ...scent.Prediction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, preds...)
}

// Predict implements Predictor.
func (s *Static) Predict(_ context.Context, reading scent.Reading) scent.Prediction {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.readings = append(s.readings, reading)

	if len(s.queue) > 0 {
		p := s.queue[0]
		s.queue = s.queue[1:]
		return p
	}
	return s.fallback
}

// Calls returns how many times Predict has been invoked.
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Readings returns a copy of every reading passed to Predict.
func (s *Static) Readings() []scent.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scent.Reading, len(s.readings))
	copy(out, s.readings)
	return out
}
