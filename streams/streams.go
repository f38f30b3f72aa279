// Package streams defines the minimal demand-signaling contract between
// message sources and consumers: a source delivers items only while the
// consumer has outstanding requested demand.
//
// The surface is deliberately small. There are no operators, no buffering
// stages and no composition helpers; implementations live in driver packages
// and consumers are built from the bridge package.
package streams

import (
	"context"
	"math"
)

// Unbounded is the maximum representable demand. Requesting it puts the
// subscription into fire-hose mode: the source may deliver without further
// Request calls.
const Unbounded int64 = math.MaxInt64

// Subscription is the live handle for one demand relationship between a
// subscriber and a source.
type Subscription interface {
	// Request adds n to the outstanding demand. Demand accumulates and
	// saturates at Unbounded. Non-positive n is ignored.
	Request(n int64)

	// Cancel releases the subscription. Safe to call more than once and
	// safe to call concurrently with delivery; after it returns the source
	// stops delivering as soon as it observes the cancellation.
	Cancel()
}

// Subscriber receives a demand-governed sequence of messages.
//
// Sources guarantee OnSubscribe is called before any other method, that
// OnNext calls are serial and in production order, and that a terminal
// signal (OnError or OnComplete) is never followed by further deliveries.
type Subscriber interface {
	OnSubscribe(sub Subscription)

	// OnNext delivers one message. A non-nil return reports that the
	// subscriber failed to process the message; the source decides whether
	// the failure ends the subscription, but it must not reflect the same
	// failure back through OnError — the subscriber has already seen it.
	OnNext(msg *Message) error

	// OnError signals that the source itself failed. Terminal.
	OnError(err error)

	// OnComplete signals that the source finished normally. Terminal.
	OnComplete()
}

// Publisher produces messages for subscribers on demand.
// Implementations must be safe for concurrent use.
type Publisher interface {
	Subscribe(sub Subscriber)
}

// Channel is the push-style send surface of a message channel. Handlers
// with an output-routing capability expose one, and in-process drivers
// implement it as their producer side.
type Channel interface {
	Send(ctx context.Context, msg *Message) error
}
