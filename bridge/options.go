package bridge

import (
	"github.com/keerthikanthn/streambridge/logging"
	"github.com/keerthikanthn/streambridge/streams"
)

type options struct {
	name         string
	logger       logging.Logger
	loggerSet    bool
	errorHandler ErrorHandler
	errorChannel streams.Channel
	hooks        Hooks
}

func defaultOptions() options {
	return options{
		name:   "consumer",
		logger: logging.NewNop(),
	}
}

// Option configures a Consumer.
type Option func(*options)

// WithName tags log entries and error messages with an endpoint name.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger. When neither an error handler nor an error
// channel is configured, the logger doubles as the error reporting path.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		if logger == nil {
			return
		}
		o.logger = logger
		o.loggerSet = true
	}
}

// WithErrorHandler sets the handler that receives processing errors.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(o *options) {
		o.errorHandler = handler
	}
}

// WithErrorChannel routes processing errors to ch when no explicit error
// handler is configured.
func WithErrorChannel(ch streams.Channel) Option {
	return func(o *options) {
		o.errorChannel = ch
	}
}

// WithHooks installs observation callbacks.
func WithHooks(hooks Hooks) Option {
	return func(o *options) {
		o.hooks = hooks
	}
}
