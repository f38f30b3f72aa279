package bridge

import (
	"context"
	"time"

	"github.com/keerthikanthn/streambridge/logging"
	"github.com/keerthikanthn/streambridge/streams"
)

// Handler processes one message. A non-nil return marks the message as
// failed; the consumer reports the error without stopping delivery.
type Handler interface {
	Handle(msg *streams.Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(*streams.Message) error

func (f HandlerFunc) Handle(msg *streams.Message) error {
	return f(msg)
}

// ErrorHandler receives errors raised while processing items.
type ErrorHandler interface {
	HandleError(err error)
}

// ErrorHandlerFunc adapts a function to ErrorHandler.
type ErrorHandlerFunc func(error)

func (f ErrorHandlerFunc) HandleError(err error) {
	f(err)
}

// Lifecycle is the optional start/stop capability a subscriber or handler
// may expose. The consumer detects it once at construction and never
// re-inspects at call sites.
type Lifecycle interface {
	Start() error
	Stop() error
	IsRunning() bool
}

// Producer is the optional capability of handlers that route results
// onward to an output channel.
type Producer interface {
	Output() streams.Channel
}

// LoggingErrorHandler reports processing errors to a logger. It is the
// resolved default when a logger is configured but no error handler or
// error channel is.
func LoggingErrorHandler(logger logging.Logger) ErrorHandler {
	return ErrorHandlerFunc(func(err error) {
		logger.Error("message processing failed", "error", err)
	})
}

// Failed error sends are dropped after this long; error reporting must not
// wedge the delivery goroutine.
const errorSendTimeout = time.Second

// PublishingErrorHandler sends processing errors to a channel as messages
// whose payload is the error itself.
func PublishingErrorHandler(ch streams.Channel) ErrorHandler {
	return ErrorHandlerFunc(func(err error) {
		ctx, cancel := context.WithTimeout(context.Background(), errorSendTimeout)
		defer cancel()
		_ = ch.Send(ctx, streams.NewMessage(err))
	})
}
