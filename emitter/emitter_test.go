package emitter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/scentstream/scent"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name        string
		scent       string
		confidence  float64
		wantChannel int
		wantValue   int
	}{
		{name: "banana full confidence", scent: "banana", confidence: 1.0, wantChannel: 0, wantValue: 200},
		{name: "lemon high confidence", scent: "lemon", confidence: 0.9, wantChannel: 7, wantValue: 180},
		{name: "half confidence clamps to floor", scent: "banana", confidence: 0.5, wantChannel: 0, wantValue: 100},
		{name: "low confidence clamps to floor", scent: "grape", confidence: 0.1, wantChannel: 4, wantValue: 100},
		{name: "rounding", scent: "orange", confidence: 0.753, wantChannel: 1, wantValue: 151},
		{name: "uppercase lookup", scent: "STRAWBERRY", confidence: 1.0, wantChannel: 6, wantValue: 200},
		{name: "mixed case lookup", scent: "IceCream", confidence: 1.0, wantChannel: 5, wantValue: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cv := Encode(tt.scent, tt.confidence)
			assert.Equal(t, tt.wantValue, cv[tt.wantChannel])
			for ch, v := range cv {
				if ch != tt.wantChannel {
					assert.Zero(t, v, "channel %d should stay idle", ch)
				}
			}
		})
	}
}

func TestEncode_ZeroVector(t *testing.T) {
	tests := []struct {
		name  string
		scent string
	}{
		{name: "no_scent", scent: scent.ScentNone},
		{name: "error classification", scent: scent.ScentError},
		{name: "unknown scent", scent: "petrichor"},
		{name: "empty scent", scent: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cv := Encode(tt.scent, 1.0)
			assert.True(t, cv.IsZero())
		})
	}
}

func TestEncodeResult(t *testing.T) {
	res := scent.StabilizedResult{Scent: "banana", Confidence: 0.85}
	cv := EncodeResult(res)
	assert.Equal(t, 170, cv[0])

	failed := scent.StabilizedResult{Scent: scent.ScentError, Confidence: 0}
	assert.True(t, EncodeResult(failed).IsZero())
}

func TestChannel(t *testing.T) {
	ch, ok := Channel("pineapple")
	require.True(t, ok)
	assert.Equal(t, 3, ch)

	_, ok = Channel("diesel")
	assert.False(t, ok)
}

func TestControlVector_MarshalJSON(t *testing.T) {
	cv := Encode("coconut", 1.0)
	data, err := json.Marshal(cv)
	require.NoError(t, err)
	assert.JSONEq(t, `{"0":0,"1":0,"2":200,"3":0,"4":0,"5":0,"6":0,"7":0}`, string(data))

	// Keys must come out in ascending channel order for the firmware parser.
	assert.Equal(t, `{"0":0,"1":0,"2":200,"3":0,"4":0,"5":0,"6":0,"7":0}`, string(data))
}

func TestControlVector_UnmarshalJSON(t *testing.T) {
	var cv ControlVector
	err := json.Unmarshal([]byte(`{"0":100,"7":180}`), &cv)
	require.NoError(t, err)
	assert.Equal(t, 100, cv[0])
	assert.Equal(t, 180, cv[7])
	assert.Equal(t, 0, cv[3])

	err = json.Unmarshal([]byte(`{"9":50}`), &cv)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"x":50}`), &cv)
	assert.Error(t, err)
}
