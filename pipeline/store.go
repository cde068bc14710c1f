package pipeline

import (
	"sort"
	"time"

	"github.com/c360/scentstream/emitter"
	"github.com/c360/scentstream/errors"
	"github.com/c360/scentstream/scent"
)

// Current is a device's latest stabilized prediction together with the
// emitter control derived from it and the reading that produced it.
type Current struct {
	DeviceID       string                `json:"device_id"`
	Scent          string                `json:"scent"`
	Confidence     float64               `json:"confidence"`
	TopPredictions map[string]float64    `json:"top_predictions,omitempty"`
	EmitterControl emitter.ControlVector `json:"emitter_control"`
	ForcedNoScent  bool                  `json:"forced_no_scent,omitempty"`
	Timestamp      time.Time             `json:"timestamp"`
	SensorData     scent.Reading         `json:"sensor_data"`
	Raw            scent.Prediction      `json:"raw_prediction"`
}

func newCurrent(reading scent.Reading, res scent.StabilizedResult) *Current {
	return &Current{
		DeviceID:       reading.DeviceID,
		Scent:          res.Scent,
		Confidence:     res.Confidence,
		TopPredictions: res.Alternatives,
		EmitterControl: emitter.EncodeResult(res),
		ForcedNoScent:  res.ForcedNoScent,
		Timestamp:      time.Now(),
		SensorData:     reading,
		Raw:            res.Raw,
	}
}

// Result reconstructs the StabilizedResult this Current was built from.
func (c *Current) Result() scent.StabilizedResult {
	return scent.StabilizedResult{
		Scent:         c.Scent,
		Confidence:    c.Confidence,
		Alternatives:  c.TopPredictions,
		ForcedNoScent: c.ForcedNoScent,
		Raw:           c.Raw,
	}
}

// DeviceSummary is a device's row in the fleet overview.
type DeviceSummary struct {
	DeviceID   string        `json:"device_id"`
	Count      int           `json:"count"`
	LastUpdate time.Time     `json:"last_update"`
	Latest     scent.Reading `json:"latest"`
}

// History returns up to limit of a device's most recent readings in
// chronological order. Unknown devices yield ErrDeviceNotFound.
func (p *Pipeline) History(device string, limit int) ([]scent.Reading, error) {
	e, err := p.lookup(device)
	if err != nil {
		return nil, err
	}
	return e.ring.Slice(limit), nil
}

// Current returns a device's latest stabilized prediction. A device
// that has readings but no committed prediction yet yields
// ErrNoPrediction.
func (p *Pipeline) Current(device string) (Current, error) {
	e, err := p.lookup(device)
	if err != nil {
		return Current{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return Current{}, errors.WrapInvalid(errors.ErrNoPrediction, "Pipeline", "Current", "device lookup")
	}
	return *e.current, nil
}

// AllCurrent returns the latest stabilized prediction for every device
// that has one, keyed by device identifier.
func (p *Pipeline) AllCurrent() map[string]Current {
	p.devMu.RLock()
	defer p.devMu.RUnlock()

	out := make(map[string]Current, len(p.devices))
	for id, e := range p.devices {
		e.mu.Lock()
		if e.current != nil {
			out[id] = *e.current
		}
		e.mu.Unlock()
	}
	return out
}

// Devices returns the known device identifiers, sorted.
func (p *Pipeline) Devices() []string {
	p.devMu.RLock()
	defer p.devMu.RUnlock()

	out := make([]string, 0, len(p.devices))
	for id := range p.devices {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// DeviceCount returns the number of known devices.
func (p *Pipeline) DeviceCount() int {
	p.devMu.RLock()
	defer p.devMu.RUnlock()
	return len(p.devices)
}

// Summary returns one row per known device, sorted by identifier.
func (p *Pipeline) Summary() []DeviceSummary {
	p.devMu.RLock()
	entries := make(map[string]*deviceEntry, len(p.devices))
	for id, e := range p.devices {
		entries[id] = e
	}
	p.devMu.RUnlock()

	out := make([]DeviceSummary, 0, len(entries))
	for id, e := range entries {
		latest, ok := e.ring.Latest()
		if !ok {
			continue
		}
		out = append(out, DeviceSummary{
			DeviceID:   id,
			Count:      e.ring.Len(),
			LastUpdate: latest.ReceivedAt,
			Latest:     latest,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

func (p *Pipeline) lookup(device string) (*deviceEntry, error) {
	if device == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingDeviceID, "Pipeline", "lookup", "device validation")
	}
	p.devMu.RLock()
	defer p.devMu.RUnlock()
	e, ok := p.devices[device]
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrDeviceNotFound, "Pipeline", "lookup", "device lookup")
	}
	return e, nil
}
