package bridge

import "github.com/keerthikanthn/streambridge/streams"

// HandlerSubscriber adapts a plain Handler to streams.Subscriber. On
// subscribe it immediately requests unbounded demand, so delivery runs in
// fire-hose mode and the handler is invoked synchronously for every
// message. Handler errors are returned from OnNext for an enclosing
// adapter to route; OnError is deliberately a no-op because that enclosing
// adapter is the single point of error reporting.
type HandlerSubscriber struct {
	handler   Handler
	lifecycle Lifecycle // nil when the handler has no lifecycle capability
	slot      subscriptionSlot
}

// NewHandlerSubscriber wraps handler. A nil handler is a configuration
// error.
func NewHandlerSubscriber(handler Handler) (*HandlerSubscriber, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	s := &HandlerSubscriber{handler: handler}
	s.lifecycle, _ = handler.(Lifecycle)
	return s, nil
}

// OnSubscribe stores the subscription and requests unbounded demand. A
// second subscription within one cycle is cancelled rather than stored.
func (s *HandlerSubscriber) OnSubscribe(sub streams.Subscription) {
	if !s.slot.store(sub) {
		sub.Cancel()
		return
	}
	sub.Request(streams.Unbounded)
}

// OnNext invokes the handler synchronously and returns its error.
func (s *HandlerSubscriber) OnNext(msg *streams.Message) error {
	return s.handler.Handle(msg)
}

// OnError is a no-op: the error has already been reported upstream of this
// layer.
func (s *HandlerSubscriber) OnError(error) {}

// OnComplete disposes the subscription.
func (s *HandlerSubscriber) OnComplete() {
	s.Dispose()
}

// Dispose cancels the held subscription at most once. Calling it again, or
// before any subscription arrived, does nothing.
func (s *HandlerSubscriber) Dispose() {
	if sub := s.slot.take(); sub != nil {
		sub.Cancel()
	}
}

// IsDisposed reports whether no live subscription is held.
func (s *HandlerSubscriber) IsDisposed() bool {
	return !s.slot.held()
}

// Start passes through to the handler's lifecycle capability when present.
func (s *HandlerSubscriber) Start() error {
	if s.lifecycle == nil {
		return nil
	}
	return s.lifecycle.Start()
}

// Stop disposes the held subscription, then passes through to the
// handler's lifecycle capability when present. Disposing first keeps the
// upstream released before the handler winds down, and leaves the
// subscriber ready for the next subscribe cycle.
func (s *HandlerSubscriber) Stop() error {
	s.Dispose()
	if s.lifecycle == nil {
		return nil
	}
	return s.lifecycle.Stop()
}

// IsRunning is true when the handler has no lifecycle capability, and
// whatever the capability reports otherwise.
func (s *HandlerSubscriber) IsRunning() bool {
	return s.lifecycle == nil || s.lifecycle.IsRunning()
}
