package retry

import "errors"

// Retry manager errors.
var (
	// ErrMaxRetriesExceeded is returned when the maximum number of attempts has been used up.
	ErrMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")

	// ErrNonRetryableError is returned when an error is not retryable.
	ErrNonRetryableError = errors.New("error is not retryable")

	// ErrKeyRequired is returned when an attempt key is required but not provided.
	ErrKeyRequired = errors.New("retry key is required")
)
