// Package stabilizer turns the raw, per-sample scent classification
// stream into a stabilized decision. Two mechanisms suppress noise:
//
//   - Delta override: a drop of DropThreshold or more in either the VOC
//     or NO2 channel between consecutive readings means the scent source
//     was removed, so the output is forced to no_scent immediately. A
//     comparable rise only clears the hysteresis state so a newly
//     emerging scent is recognized quickly.
//   - Repeat hysteresis: the same non-no_scent label arriving
//     RepeatLimit times in a row means the scent has been fully sampled
//     and is lingering, so the output is proactively cleared to
//     no_scent and the counter restarts.
//
// The stabilizer itself is stateless; callers keep one State per device
// and pass it to every Step. A failed classification (the "error" label)
// flows through repeat counting like any other label unless CountErrors
// is disabled.
package stabilizer

import (
	"github.com/c360/scentstream/scent"
)

// Default tuning. Thresholds are in raw sensor units.
const (
	DefaultDropThreshold = 4.0
	DefaultRiseThreshold = 4.0
	DefaultRepeatLimit   = 3
)

// Config tunes the stabilizer. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	// DropThreshold forces no_scent when VOC or NO2 falls by at least
	// this much between consecutive readings.
	DropThreshold float64 `json:"drop_threshold"`
	// RiseThreshold clears hysteresis state when VOC or NO2 climbs by at
	// least this much between consecutive readings.
	RiseThreshold float64 `json:"rise_threshold"`
	// RepeatLimit is the consecutive-repeat count at which a lingering
	// scent is cleared to no_scent.
	RepeatLimit int `json:"repeat_limit"`
	// CountErrors controls whether the "error" label participates in
	// repeat counting.
	CountErrors bool `json:"count_errors"`
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		DropThreshold: DefaultDropThreshold,
		RiseThreshold: DefaultRiseThreshold,
		RepeatLimit:   DefaultRepeatLimit,
		CountErrors:   true,
	}
}

func (c Config) normalized() Config {
	if c.DropThreshold <= 0 {
		c.DropThreshold = DefaultDropThreshold
	}
	if c.RiseThreshold <= 0 {
		c.RiseThreshold = DefaultRiseThreshold
	}
	if c.RepeatLimit <= 0 {
		c.RepeatLimit = DefaultRepeatLimit
	}
	return c
}

// State is the per-device hysteresis state. The zero value is the state
// of a device that has never produced a classification.
type State struct {
	// LastScent is the raw label of the previous step, or no_scent right
	// after a forced clear, or empty after a rise reset.
	LastScent string `json:"last_scent"`
	// Count is the consecutive-repeat counter for LastScent.
	Count int `json:"count"`
}

// Delta is the channel movement between a device's previous reading and
// the current one, as previous minus current. Positive values are drops.
// Missing channel values count as zero.
type Delta struct {
	VOC float64 `json:"voc"`
	NO2 float64 `json:"no2"`
}

// DeltaBetween computes the Delta for a new reading. A nil previous
// reading (first reading for the device) yields the zero Delta, which
// triggers nothing.
func DeltaBetween(prev *scent.Reading, cur scent.Reading) Delta {
	if prev == nil {
		return Delta{}
	}
	return Delta{
		VOC: scent.Value(prev.VOC) - scent.Value(cur.VOC),
		NO2: scent.Value(prev.NO2) - scent.Value(cur.NO2),
	}
}

// Outcome reports which rule produced a Step's result.
type Outcome int

const (
	// OutcomePass means the raw prediction passed through unchanged.
	OutcomePass Outcome = iota
	// OutcomeDeltaClear means a channel drop forced no_scent.
	OutcomeDeltaClear
	// OutcomeRepeatClear means the repeat limit forced no_scent.
	OutcomeRepeatClear
)

func (o Outcome) String() string {
	switch o {
	case OutcomePass:
		return "pass"
	case OutcomeDeltaClear:
		return "delta"
	case OutcomeRepeatClear:
		return "repeat"
	default:
		return "unknown"
	}
}

// Stabilizer applies the debounce rules. It carries no per-device state
// and is safe for concurrent use as long as each State is guarded by its
// device's lock.
type Stabilizer struct {
	cfg Config
}

// New creates a Stabilizer, filling unset Config fields with defaults.
func New(cfg Config) *Stabilizer {
	return &Stabilizer{cfg: cfg.normalized()}
}

// Config returns the effective tuning.
func (s *Stabilizer) Config() Config {
	return s.cfg
}

// Step runs one transition for a device. It mutates state and returns
// the stabilized result plus the rule that produced it. The caller must
// hold the device's lock.
func (s *Stabilizer) Step(state *State, delta Delta, raw scent.Prediction) (scent.StabilizedResult, Outcome) {
	// A sharp drop in either chemical channel is an immediate signal the
	// source was removed. It short-circuits the repeat logic entirely.
	dropped := delta.VOC >= s.cfg.DropThreshold || delta.NO2 >= s.cfg.DropThreshold
	rose := delta.VOC <= -s.cfg.RiseThreshold || delta.NO2 <= -s.cfg.RiseThreshold

	if dropped {
		state.LastScent = scent.ScentNone
		state.Count = 0
	}
	// Evaluated independently of the drop rule: one channel can fall
	// while the other climbs.
	if rose {
		state.LastScent = ""
		state.Count = 0
	}
	if dropped {
		return forcedClear(raw), OutcomeDeltaClear
	}

	if !s.cfg.CountErrors && raw.Scent == scent.ScentError {
		return passthrough(raw), OutcomePass
	}

	if raw.Scent != state.LastScent {
		state.LastScent = raw.Scent
		state.Count = 1
		return passthrough(raw), OutcomePass
	}

	state.Count++
	if state.Count >= s.cfg.RepeatLimit && raw.Scent != scent.ScentNone {
		state.LastScent = scent.ScentNone
		state.Count = 0
		return forcedClear(raw), OutcomeRepeatClear
	}
	return passthrough(raw), OutcomePass
}

func forcedClear(raw scent.Prediction) scent.StabilizedResult {
	return scent.StabilizedResult{
		Scent:         scent.ScentNone,
		Confidence:    1.0,
		Alternatives:  map[string]float64{scent.ScentNone: 1.0},
		ForcedNoScent: true,
		Raw:           raw,
	}
}

func passthrough(raw scent.Prediction) scent.StabilizedResult {
	return scent.StabilizedResult{
		Scent:        raw.Scent,
		Confidence:   raw.Confidence,
		Alternatives: raw.TopPredictions,
		Raw:          raw,
	}
}
