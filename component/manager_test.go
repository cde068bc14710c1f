package component

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeComponent records lifecycle calls for assertions.
type fakeComponent struct {
	name      string
	initErr   error
	startErr  error
	stopErr   error
	initCount int
	log       *[]string // shared call log, appended under test goroutine only
}

func (f *fakeComponent) Meta() Metadata {
	return Metadata{Name: f.name, Type: "processor", Description: "test", Version: "0.0.1"}
}

func (f *fakeComponent) ConfigSchema() ConfigSchema { return ConfigSchema{} }

func (f *fakeComponent) Health() HealthStatus {
	return HealthStatus{Healthy: true, LastCheck: time.Now()}
}

func (f *fakeComponent) DataFlow() FlowMetrics { return FlowMetrics{} }

func (f *fakeComponent) Initialize() error {
	f.initCount++
	return f.initErr
}

func (f *fakeComponent) Start(_ context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	*f.log = append(*f.log, "start:"+f.name)
	return nil
}

func (f *fakeComponent) Stop(_ time.Duration) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	*f.log = append(*f.log, "stop:"+f.name)
	return nil
}

func TestManager_StartStopOrder(t *testing.T) {
	var log []string
	a := &fakeComponent{name: "a", log: &log}
	b := &fakeComponent{name: "b", log: &log}
	c := &fakeComponent{name: "c", log: &log}

	m := NewManager(nil)
	require.NoError(t, m.Register(a))
	require.NoError(t, m.Register(b))
	require.NoError(t, m.Register(c))

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop(time.Second))

	assert.Equal(t, []string{
		"start:a", "start:b", "start:c",
		"stop:c", "stop:b", "stop:a",
	}, log)
}

func TestManager_StartFailureRollsBack(t *testing.T) {
	var log []string
	a := &fakeComponent{name: "a", log: &log}
	b := &fakeComponent{name: "b", log: &log, startErr: errors.New("boom")}

	m := NewManager(nil)
	require.NoError(t, m.Register(a))
	require.NoError(t, m.Register(b))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start b")

	// a was started and must be stopped again
	assert.Equal(t, []string{"start:a", "stop:a"}, log)

	states := m.States()
	assert.Equal(t, StateStopped, states["a"])
	assert.Equal(t, StateFailed, states["b"])
}

func TestManager_DoubleStart(t *testing.T) {
	var log []string
	a := &fakeComponent{name: "a", log: &log}

	m := NewManager(nil)
	require.NoError(t, m.Register(a))
	require.NoError(t, m.Start(context.Background()))

	assert.Error(t, m.Start(context.Background()))
	assert.Error(t, m.Register(&fakeComponent{name: "late", log: &log}))

	require.NoError(t, m.Stop(time.Second))
}

func TestManager_StopWithoutStart(t *testing.T) {
	m := NewManager(nil)
	assert.Error(t, m.Stop(time.Second))
}

func TestManager_Health(t *testing.T) {
	var log []string
	a := &fakeComponent{name: "a", log: &log}

	m := NewManager(nil)
	require.NoError(t, m.Register(a))

	health := m.Health()
	require.Contains(t, health, "a")
	assert.True(t, health["a"].Healthy)
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateCreated, "created"},
		{StateInitialized, "initialized"},
		{StateStarted, "started"},
		{StateStopped, "stopped"},
		{StateFailed, "failed"},
		{State(42), "unknown"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, tc.state.String())
	}
}
