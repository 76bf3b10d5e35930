package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors recognized across pipeline stages.
var (
	// ErrUnmappedCode means the reconciler has no crosswalk entry for a
	// source code. Callers recover by passing the raw code through.
	ErrUnmappedCode = errors.New("no crosswalk entry for code")

	// ErrRateLimited is returned when the upstream answered 429 after
	// the retry budget was exhausted.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// TransientError wraps a failure worth retrying: 5xx, 429, timeouts.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// BatchError marks one extraction batch as failed. The run continues
// with remaining batches; the report carries replay parameters.
type BatchError struct {
	Batch int
	Err   error
}

func (e *BatchError) Error() string { return fmt.Sprintf("batch %d: %v", e.Batch, e.Err) }

func (e *BatchError) Unwrap() error { return e.Err }

// DecodeError marks a malformed or size-mismatched cube response.
// Fatal for its batch only.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode: %s", e.Reason) }

// ConfigError is fatal for the entire run and is never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("configuration: %s", e.Reason) }

// IsConfigError reports whether err aborts the whole run.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
