package predictor

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/scentstream/scent"
)

// shellPredictor builds a Process backed by a shell one-liner standing
// in for the classifier script.
func shellPredictor(t *testing.T, script string, timeout time.Duration) *Process {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-based classifier stub requires a POSIX shell")
	}
	p, err := NewProcess(ProcessConfig{
		Command: "sh",
		Args:    []string{"-c", script},
		Timeout: timeout,
	})
	require.NoError(t, err)
	return p
}

func TestNewProcess_RequiresCommand(t *testing.T) {
	_, err := NewProcess(ProcessConfig{})
	assert.Error(t, err)
}

func TestProcess_Success(t *testing.T) {
	p := shellPredictor(t,
		`cat >/dev/null; echo '{"predicted_scent":"banana","confidence":0.85,"top_predictions":{"banana":0.85,"mango":0.1}}'`,
		5*time.Second)

	pred := p.Predict(context.Background(), sampleReading())

	assert.Equal(t, "banana", pred.Scent)
	assert.Equal(t, 0.85, pred.Confidence)
	assert.Equal(t, 0.1, pred.TopPredictions["mango"])
	assert.False(t, pred.Failed())
}

func TestProcess_NonZeroExit(t *testing.T) {
	p := shellPredictor(t, `cat >/dev/null; exit 3`, 5*time.Second)

	pred := p.Predict(context.Background(), sampleReading())

	assert.Equal(t, scent.ScentError, pred.Scent)
	assert.Equal(t, "prediction service unavailable", pred.Error)
}

func TestProcess_MalformedOutput(t *testing.T) {
	p := shellPredictor(t, `cat >/dev/null; echo 'not json at all'`, 5*time.Second)

	pred := p.Predict(context.Background(), sampleReading())

	assert.Equal(t, scent.ScentError, pred.Scent)
	assert.Equal(t, "invalid prediction response", pred.Error)
}

func TestProcess_MissingScentField(t *testing.T) {
	// Echoing the reading back produces valid JSON without a
	// predicted_scent field.
	p := shellPredictor(t, `cat`, 5*time.Second)

	pred := p.Predict(context.Background(), sampleReading())

	assert.Equal(t, scent.ScentError, pred.Scent)
	assert.Equal(t, "invalid prediction response", pred.Error)
}

func TestProcess_Timeout(t *testing.T) {
	p := shellPredictor(t, `sleep 5`, 100*time.Millisecond)

	start := time.Now()
	pred := p.Predict(context.Background(), sampleReading())

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, scent.ScentError, pred.Scent)
	assert.Equal(t, "prediction service unavailable", pred.Error)
}

func TestProcess_ContextCancelled(t *testing.T) {
	p := shellPredictor(t, `sleep 5`, 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	pred := p.Predict(ctx, sampleReading())
	assert.Equal(t, "prediction service unavailable", pred.Error)
}
