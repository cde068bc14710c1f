// Package retry provides simple exponential backoff retry logic for transient failures.
//
// # Overview
//
// This package offers a minimal retry mechanism with exponential backoff, used
// for network operations, predictor calls, and component startup.
//
// # Core Functions
//
//   - Do: Execute function with retry and exponential backoff
//   - DoWithResult: Execute function with retry, returns both result and error
//
// # Configuration Presets
//
//   - DefaultConfig(): 3 attempts, 100ms-5s delay (normal operations)
//   - Quick(): 10 attempts, 50ms-1s delay (component startup)
//   - Persistent(): 30 attempts, 200ms-10s delay (critical resources)
//
// # Usage Examples
//
// Basic retry with defaults:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return client.Connect()
//	})
//
// Retry with result:
//
//	pred, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (scent.Prediction, error) {
//	    return predictor.Predict(ctx, reading)
//	})
//
// Marking an error as not worth retrying:
//
//	err := retry.Do(ctx, cfg, func() error {
//	    resp, err := client.Do(req)
//	    if err != nil {
//	        return err // retried
//	    }
//	    if resp.StatusCode == http.StatusBadRequest {
//	        return retry.NonRetryable(fmt.Errorf("bad request"))
//	    }
//	    return nil
//	})
//
// # Design Philosophy
//
// This package is intentionally minimal:
//
//   - No circuit breakers
//   - No metrics collection (instrument at call site)
//   - No complex error classification (caller decides what to retry)
//   - Just exponential backoff with jitter
//
// # Context Cancellation
//
// Do respects context cancellation both between attempts and during backoff
// sleeps, returning a wrapped ctx.Err() when cancelled.
package retry
