package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360/scentstream/errors"
	"github.com/c360/scentstream/pkg/retry"
	"github.com/c360/scentstream/scent"
)

// HTTPConfig configures the HTTP adapter.
type HTTPConfig struct {
	// URL is the full prediction endpoint, for example
	// http://localhost:8100/predict.
	URL string
	// Timeout bounds one attempt. Zero means DefaultTimeout.
	Timeout time.Duration
	// Client defaults to a dedicated http.Client with Timeout set.
	Client *http.Client
	// Retry tunes transient-failure retries. Zero means retry.Quick.
	Retry retry.Config
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// HTTP classifies readings by POSTing them to a classifier service.
// Transport failures and 5xx answers are retried with backoff; a 4xx
// answer or an undecodable body is not worth retrying and maps straight
// to a sentinel error prediction.
type HTTP struct {
	url    string
	client *http.Client
	retry  retry.Config
	logger *slog.Logger
}

// NewHTTP creates an HTTP predictor.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if cfg.URL == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Predictor", "NewHTTP", "url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.Quick()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HTTP{
		url:    cfg.URL,
		client: cfg.Client,
		retry:  cfg.Retry,
		logger: cfg.Logger,
	}, nil
}

// Predict implements Predictor.
func (h *HTTP) Predict(ctx context.Context, reading scent.Reading) scent.Prediction {
	payload, err := json.Marshal(reading)
	if err != nil {
		h.logger.Error("failed to encode reading for classifier",
			"component", "predictor",
			"device", reading.DeviceID,
			"error", err)
		return malformed()
	}

	pred, err := retry.DoWithResult(ctx, h.retry, func() (scent.Prediction, error) {
		return h.attempt(ctx, reading.DeviceID, payload)
	})
	if err != nil {
		h.logger.Error("classifier service unreachable",
			"component", "predictor",
			"device", reading.DeviceID,
			"url", h.url,
			"error", err)
		return unavailable()
	}
	return pred
}

// attempt performs one POST. It returns an error only for conditions
// worth retrying; permanent failures come back as a sentinel prediction
// with a nil error so the retry loop stops.
func (h *HTTP) attempt(ctx context.Context, device string, payload []byte) (scent.Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(payload))
	if err != nil {
		return scent.Prediction{}, retry.NonRetryable(
			errors.WrapInvalid(err, "Predictor", "Predict", "build request"))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return scent.Prediction{}, errors.WrapTransient(err, "Predictor", "Predict", "post reading")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return scent.Prediction{}, errors.WrapTransient(err, "Predictor", "Predict", "read response")
	}

	switch {
	case resp.StatusCode >= 500:
		return scent.Prediction{}, errors.WrapTransient(
			fmt.Errorf("classifier returned %d", resp.StatusCode),
			"Predictor", "Predict", "post reading")
	case resp.StatusCode >= 400:
		h.logger.Error("classifier rejected reading",
			"component", "predictor",
			"device", device,
			"status", resp.StatusCode,
			"body", truncate(string(body), 512))
		return malformed(), nil
	}

	var pred scent.Prediction
	if err := json.Unmarshal(body, &pred); err != nil || pred.Scent == "" {
		h.logger.Error("classifier produced unparseable response",
			"component", "predictor",
			"device", device,
			"error", err,
			"body", truncate(string(body), 512))
		return malformed(), nil
	}
	return pred, nil
}
