package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os/exec"
	"time"

	"github.com/c360/scentstream/errors"
	"github.com/c360/scentstream/scent"
)

// ProcessConfig configures the subprocess adapter.
type ProcessConfig struct {
	// Command is the classifier executable (for example a venv python).
	Command string
	// Args are passed to the command (typically the inference script).
	Args []string
	// Timeout bounds one classification, spawn to exit. Zero means
	// DefaultTimeout.
	Timeout time.Duration
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Process classifies readings by spawning the classifier command per
// reading. The reading is written to the child's stdin as JSON and the
// prediction is read from its stdout as JSON. A non-zero exit, a
// timeout, or unparseable output yields a sentinel error prediction.
type Process struct {
	command string
	args    []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewProcess creates a subprocess predictor.
func NewProcess(cfg ProcessConfig) (*Process, error) {
	if cfg.Command == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Predictor", "NewProcess", "command is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Process{
		command: cfg.Command,
		args:    cfg.Args,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}, nil
}

// Predict implements Predictor.
func (p *Process) Predict(ctx context.Context, reading scent.Reading) scent.Prediction {
	payload, err := json.Marshal(reading)
	if err != nil {
		p.logger.Error("failed to encode reading for classifier",
			"component", "predictor",
			"device", reading.DeviceID,
			"error", err)
		return malformed()
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.command, p.args...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		p.logger.Error("classifier process failed",
			"component", "predictor",
			"device", reading.DeviceID,
			"command", p.command,
			"error", err,
			"stderr", stderr.String())
		return unavailable()
	}

	var pred scent.Prediction
	if err := json.Unmarshal(stdout.Bytes(), &pred); err != nil {
		p.logger.Error("classifier produced unparseable output",
			"component", "predictor",
			"device", reading.DeviceID,
			"error", err,
			"stdout", truncate(stdout.String(), 512))
		return malformed()
	}
	if pred.Scent == "" {
		p.logger.Error("classifier output missing predicted_scent",
			"component", "predictor",
			"device", reading.DeviceID,
			"stdout", truncate(stdout.String(), 512))
		return malformed()
	}

	p.logger.Debug("classification complete",
		"component", "predictor",
		"device", reading.DeviceID,
		"scent", pred.Scent,
		"confidence", pred.Confidence)
	return pred
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
