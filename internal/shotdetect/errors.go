package shotdetect

import "errors"

// Error taxonomy for the detection engine. All three describe caller input
// problems and are never retried.
var (
	ErrInvalidFrame  = errors.New("invalid frame")
	ErrInvalidConfig = errors.New("invalid config")
	ErrEmptySequence = errors.New("empty frame sequence")
)

// IsNonRetriable reports whether err belongs to the engine's error taxonomy.
func IsNonRetriable(err error) bool {
	return errors.Is(err, ErrInvalidFrame) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrEmptySequence)
}
