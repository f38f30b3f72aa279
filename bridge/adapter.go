package bridge

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/keerthikanthn/streambridge/logging"
	"github.com/keerthikanthn/streambridge/streams"
)

// consumerAdapter is the subscriber a Consumer attaches to its source; a
// fresh one is built for every start cycle. It owns the cycle's
// subscription handle and keeps processing failures at the item boundary:
// a failed message is reported to the error handler AND forwarded to the
// inner subscriber as OnError, then returned upstream as the failure
// notification. Whether delivery continues after that is the source's
// decision; it must not reflect the same failure back through OnError.
type consumerAdapter struct {
	delegate streams.Subscriber
	errors   ErrorHandler
	hooks    Hooks
	logger   logging.Logger
	name     string

	slot    subscriptionSlot
	stopped atomic.Bool
}

func newConsumerAdapter(c *Consumer) *consumerAdapter {
	return &consumerAdapter{
		delegate: c.subscriber,
		errors:   c.errorHandler,
		hooks:    c.opts.hooks,
		logger:   c.opts.logger,
		name:     c.opts.name,
	}
}

// OnSubscribe records the subscription, then forwards it so the inner
// subscriber can issue its own demand. Subscriptions arriving after stop,
// or beyond the first in a cycle, are cancelled immediately.
func (a *consumerAdapter) OnSubscribe(sub streams.Subscription) {
	if a.stopped.Load() {
		sub.Cancel()
		return
	}
	if !a.slot.store(sub) {
		sub.Cancel()
		return
	}
	if a.stopped.Load() {
		// stop raced the store; the cycle must not deliver
		if held := a.slot.take(); held != nil {
			held.Cancel()
		}
		return
	}
	if a.hooks.OnSubscribe != nil {
		a.hooks.OnSubscribe()
	}
	a.logger.Debug("subscription accepted", "endpoint", a.name)
	a.delegate.OnSubscribe(sub)
}

// OnNext hands one message to the inner subscriber. A failure is fully
// reported here, at the item boundary: the error handler sees it and the
// inner subscriber receives it as a terminal OnError. The same error is
// then returned upstream as a notification; whether that ends the
// subscription is the source's decision.
func (a *consumerAdapter) OnNext(msg *streams.Message) error {
	if a.hooks.OnReceive != nil {
		a.hooks.OnReceive(msg)
	}
	start := time.Now()
	err := a.dispatch(msg)
	if a.hooks.OnProcessed != nil {
		a.hooks.OnProcessed(msg, time.Since(start))
	}
	if err != nil {
		a.logger.Debug("message processing failed", "endpoint", a.name, "error", err)
		a.errors.HandleError(err)
		if a.hooks.OnFailure != nil {
			a.hooks.OnFailure(err)
		}
		a.OnError(err)
	}
	return err
}

// dispatch guards inner delivery so a panicking subscriber is reported the
// same way as a failing one.
func (a *consumerAdapter) dispatch(msg *streams.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bridge: panic in subscriber: %v", r)
		}
	}()
	return a.delegate.OnNext(msg)
}

// OnError forwards the terminal error to the inner subscriber. The slot is
// cleared without a cancel: a terminated subscription needs no release.
func (a *consumerAdapter) OnError(err error) {
	a.slot.take()
	if a.hooks.OnTerminate != nil {
		a.hooks.OnTerminate(err)
	}
	a.delegate.OnError(err)
}

// OnComplete forwards normal completion to the inner subscriber.
func (a *consumerAdapter) OnComplete() {
	a.slot.take()
	if a.hooks.OnTerminate != nil {
		a.hooks.OnTerminate(nil)
	}
	a.delegate.OnComplete()
}

// stop ends the cycle, cancelling the held subscription at most once. Safe
// to call concurrently with in-flight delivery.
func (a *consumerAdapter) stop() {
	a.stopped.Store(true)
	if sub := a.slot.take(); sub != nil {
		sub.Cancel()
		if a.hooks.OnCancel != nil {
			a.hooks.OnCancel()
		}
	}
}
