// Package bridge connects a demand-governed message source to a consumer
// that is either demand-aware itself or a plain per-item handler. The
// Consumer owns start/stop sequencing around the subscription, resolves an
// error handler at construction and guarantees the upstream subscription
// is released exactly once when it stops.
package bridge

import (
	"fmt"
	"sync"

	"github.com/keerthikanthn/streambridge/streams"
)

// Consumer subscribes an inner subscriber to a demand source and sequences
// the pieces across repeatable start/stop cycles. Consumer itself
// satisfies Lifecycle.
type Consumer struct {
	source       streams.Publisher
	subscriber   streams.Subscriber
	handler      Handler
	lifecycle    Lifecycle       // inner lifecycle capability, nil when absent
	output       streams.Channel // handler routing capability, nil when absent
	errorHandler ErrorHandler
	opts         options

	mu      sync.Mutex
	running bool
	adapter *consumerAdapter // current cycle, nil while stopped
}

// NewConsumer bridges source to a demand-aware subscriber.
func NewConsumer(source streams.Publisher, subscriber streams.Subscriber, opts ...Option) (*Consumer, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	if subscriber == nil {
		return nil, ErrNilSubscriber
	}
	return newConsumer(source, subscriber, effectiveHandler(subscriber), opts)
}

// NewHandlerConsumer bridges source to a plain item handler. The handler
// is wrapped in a HandlerSubscriber unless it is already a subscriber in
// its own right.
func NewHandlerConsumer(source streams.Publisher, handler Handler, opts ...Option) (*Consumer, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	if handler == nil {
		return nil, ErrNilHandler
	}
	if sub, ok := handler.(streams.Subscriber); ok {
		return newConsumer(source, sub, handler, opts)
	}
	sub, err := NewHandlerSubscriber(handler)
	if err != nil {
		return nil, err
	}
	return newConsumer(source, sub, handler, opts)
}

func newConsumer(source streams.Publisher, subscriber streams.Subscriber, handler Handler, opts []Option) (*Consumer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	c := &Consumer{
		source:     source,
		subscriber: subscriber,
		handler:    handler,
		opts:       o,
	}
	c.lifecycle, _ = subscriber.(Lifecycle)
	if p, ok := handler.(Producer); ok {
		c.output = p.Output()
	}

	errorHandler, err := resolveErrorHandler(o)
	if err != nil {
		return nil, err
	}
	c.errorHandler = errorHandler
	return c, nil
}

// effectiveHandler exposes a raw subscriber's delivery method through the
// Handler accessor surface.
func effectiveHandler(subscriber streams.Subscriber) Handler {
	if h, ok := subscriber.(Handler); ok {
		return h
	}
	return HandlerFunc(subscriber.OnNext)
}

// resolveErrorHandler picks the error reporting path once, at construction:
// an explicit handler wins, then a publishing handler on the error channel,
// then a logging handler. Nothing resolvable is a configuration error.
func resolveErrorHandler(o options) (ErrorHandler, error) {
	switch {
	case o.errorHandler != nil:
		return o.errorHandler, nil
	case o.errorChannel != nil:
		return PublishingErrorHandler(o.errorChannel), nil
	case o.loggerSet:
		return LoggingErrorHandler(o.logger), nil
	}
	return nil, ErrNoErrorHandler
}

// Start subscribes the consumer to its source. The inner lifecycle starts
// first so no delivery reaches a stopped subscriber. Starting a running
// consumer is a no-op.
func (c *Consumer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	if c.lifecycle != nil {
		if err := c.lifecycle.Start(); err != nil {
			return fmt.Errorf("bridge: start subscriber: %w", err)
		}
	}
	adapter := newConsumerAdapter(c)
	c.adapter = adapter
	c.running = true
	c.source.Subscribe(adapter)
	c.opts.logger.Info("consumer started", "endpoint", c.opts.name)
	return nil
}

// Stop cancels the live subscription, then stops the inner lifecycle.
// Cancelling first keeps late deliveries away from a stopped subscriber.
// Stopping an already stopped consumer is a no-op.
func (c *Consumer) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false
	if c.adapter != nil {
		c.adapter.stop()
		c.adapter = nil
	}
	if c.lifecycle != nil {
		if err := c.lifecycle.Stop(); err != nil {
			return fmt.Errorf("bridge: stop subscriber: %w", err)
		}
	}
	c.opts.logger.Info("consumer stopped", "endpoint", c.opts.name)
	return nil
}

// IsRunning reports whether the consumer is between Start and Stop.
func (c *Consumer) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Source returns the demand source this consumer subscribes to.
func (c *Consumer) Source() streams.Publisher { return c.source }

// Handler returns the effective item handler.
func (c *Consumer) Handler() Handler { return c.handler }

// Output returns the handler's output channel, or nil when the handler has
// no routing capability.
func (c *Consumer) Output() streams.Channel { return c.output }
