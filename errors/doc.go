// Package errors provides standardized error handling patterns for ScentStream components.
//
// # Overview
//
// The errors package implements a three-class error classification system for
// the scent pipeline: Transient (temporary, retryable), Invalid (bad input,
// non-retryable), and Fatal (unrecoverable, stop processing).
//
// Classification lets components make informed decisions about retries and
// graceful degradation without hardcoded error string matching. A failed call
// to the external predictor is Transient; a reading without a device_id is
// Invalid; a broken configuration is Fatal.
//
// # Quick Start
//
// Use standard error variables for common conditions:
//
//	if deviceID == "" {
//	    return errors.ErrMissingDeviceID
//	}
//
// Wrap errors with context for debugging:
//
//	if err := predictor.Predict(ctx, reading); err != nil {
//	    return errors.WrapTransient(err, "Pipeline", "Ingest", "predict scent")
//	}
//
// Check classification for retry logic:
//
//	if err := operation(); err != nil {
//	    if errors.IsTransient(err) {
//	        config := errors.DefaultRetryConfig()
//	        if config.ShouldRetry(err, attempt) {
//	            time.Sleep(config.BackoffDelay(attempt))
//	            // retry operation
//	        }
//	    }
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// This format enables consistent log parsing and operational monitoring across
// the pipeline. The Wrap family of functions applies the pattern while
// preserving error classification through the chain.
//
// Three wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransient(err, "Component", "Method", "action")  // For retryable errors
//	errors.WrapInvalid(err, "Component", "Method", "action")    // For validation errors
//	errors.WrapFatal(err, "Component", "Method", "action")      // For unrecoverable errors
//
// # Standard Error Variables
//
// Pre-defined error variables cover the pipeline's common conditions:
//
//   - Component lifecycle: ErrAlreadyStarted, ErrNotStarted, ErrAlreadyStopped
//   - Connection issues: ErrNoConnection, ErrConnectionLost, ErrConnectionTimeout
//   - Ingestion: ErrMissingDeviceID, ErrInvalidReading, ErrInvalidData
//   - Prediction boundary: ErrPredictorUnavailable, ErrPredictorResponse, ErrPredictionStale
//   - Device state: ErrDeviceNotFound, ErrNoPrediction
//   - Configuration: ErrInvalidConfig, ErrMissingConfig
//
// # Integration with errors.As/Is
//
// All error types support standard library error inspection:
//
//	var ce *errors.ClassifiedError
//	if errors.As(err, &ce) {
//	    log.Printf("Component: %s, Class: %s", ce.Component, ce.Class)
//	}
//
//	// Classification is preserved through error chains
//	wrapped := errors.Wrap(errors.ErrConnectionTimeout, "NATSClient", "Connect", "dial")
//	if errors.IsTransient(wrapped) {  // true
//	    // Retry logic
//	}
//
// Context errors (context.DeadlineExceeded, context.Canceled) are classified
// as Transient, so context-based timeouts are handled the same way as network
// timeouts.
//
// # Thread Safety
//
// All classification and wrapping operations are thread-safe. Error variables
// are immutable and safe for concurrent access.
package errors
