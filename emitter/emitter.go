// Package emitter encodes a stabilized scent classification into the
// 8-channel control vector consumed by the scent-emitter hardware. Each
// known scent owns one channel; intensity scales with prediction
// confidence down to a hardware floor below which the emitter does not
// actuate.
package emitter

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/c360/scentstream/scent"
)

// Channels is the number of emitter slots on the device.
const Channels = 8

const (
	// BaseIntensity is the channel value at full confidence.
	BaseIntensity = 200
	// MinIntensity is the hardware actuation floor. Any non-zero channel
	// is clamped up to this value.
	MinIntensity = 100
)

// channelMap assigns each recognizable scent its emitter slot. Lookup is
// case-insensitive; names here are the canonical lowercase form the
// classifier emits.
var channelMap = map[string]int{
	"banana":     0,
	"orange":     1,
	"coconut":    2,
	"pineapple":  3,
	"grape":      4,
	"icecream":   5,
	"strawberry": 6,
	"lemon":      7,
}

// ControlVector holds one intensity per emitter channel. It marshals as a
// JSON object with string channel keys ("0" through "7"), the shape the
// device firmware expects.
type ControlVector [Channels]int

// Encode builds the control vector for a stabilized classification. The
// scent's channel is driven at BaseIntensity scaled by confidence and
// clamped to MinIntensity; all other channels stay zero. Unknown scents,
// no_scent, and error classifications yield an all-zero vector.
func Encode(scentName string, confidence float64) ControlVector {
	var cv ControlVector

	channel, ok := channelMap[strings.ToLower(scentName)]
	if !ok {
		return cv
	}

	intensity := int(math.Round(BaseIntensity * confidence))
	if intensity < MinIntensity {
		intensity = MinIntensity
	}
	cv[channel] = intensity
	return cv
}

// EncodeResult builds the control vector for a stabilized result,
// returning all-zero when the underlying prediction failed.
func EncodeResult(res scent.StabilizedResult) ControlVector {
	if res.Scent == scent.ScentError {
		return ControlVector{}
	}
	return Encode(res.Scent, res.Confidence)
}

// Channel returns the emitter slot for a scent and whether the scent is
// recognized.
func Channel(scentName string) (int, bool) {
	ch, ok := channelMap[strings.ToLower(scentName)]
	return ch, ok
}

// IsZero reports whether no channel is driven.
func (cv ControlVector) IsZero() bool {
	return cv == ControlVector{}
}

// MarshalJSON renders the vector as {"0":n,...,"7":n} with keys in
// ascending order.
func (cv ControlVector) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, v := range cv {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strconv.Itoa(i))
		b.WriteString(`":`)
		b.WriteString(strconv.Itoa(v))
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

// UnmarshalJSON parses the string-keyed object form. Missing channels
// default to zero; keys outside 0..7 are rejected.
func (cv *ControlVector) UnmarshalJSON(data []byte) error {
	var raw map[string]int
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var out ControlVector
	for key, v := range raw {
		ch, err := strconv.Atoi(key)
		if err != nil || ch < 0 || ch >= Channels {
			return fmt.Errorf("invalid emitter channel key %q", key)
		}
		out[ch] = v
	}
	*cv = out
	return nil
}
