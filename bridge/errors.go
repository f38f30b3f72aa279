package bridge

import "errors"

// Configuration errors reported by constructors in this package.
var (
	// ErrNilSource is returned when the demand source is missing.
	ErrNilSource = errors.New("bridge: source is required")

	// ErrNilSubscriber is returned when the subscriber is missing.
	ErrNilSubscriber = errors.New("bridge: subscriber is required")

	// ErrNilHandler is returned when the handler is missing.
	ErrNilHandler = errors.New("bridge: handler is required")

	// ErrNoErrorHandler is returned when no error handler is supplied and
	// none can be resolved from an error channel or logger.
	ErrNoErrorHandler = errors.New("bridge: no error handler configured")
)
