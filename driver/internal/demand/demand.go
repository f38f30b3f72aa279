// Package demand implements the subscription-side demand accounting shared
// by the driver packages: a Gate is handed to the subscriber as its
// subscription handle, and the driver's delivery loop blocks on it so no
// message ever moves without outstanding demand.
package demand

import (
	"context"
	"errors"
	"sync"

	"github.com/keerthikanthn/streambridge/streams"
)

// ErrCancelled is returned by Acquire once the gate has been cancelled.
var ErrCancelled = errors.New("demand: subscription cancelled")

// Gate implements streams.Subscription for a single subscriber. Requested
// demand accumulates and saturates at streams.Unbounded; Cancel runs the
// driver's teardown exactly once.
type Gate struct {
	mu       sync.Mutex
	demand   int64
	notify   chan struct{}
	done     chan struct{}
	once     sync.Once
	onCancel func()
}

// NewGate builds a gate. onCancel may be nil; otherwise it runs exactly
// once, on the first Cancel call.
func NewGate(onCancel func()) *Gate {
	return &Gate{
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		onCancel: onCancel,
	}
}

// Request adds n to the outstanding demand. Non-positive n is ignored.
func (g *Gate) Request(n int64) {
	if n <= 0 {
		return
	}
	g.mu.Lock()
	if g.demand >= streams.Unbounded-n {
		g.demand = streams.Unbounded
	} else {
		g.demand += n
	}
	g.mu.Unlock()

	select {
	case g.notify <- struct{}{}:
	default:
	}
}

// Cancel releases the subscription. Safe to call repeatedly and from any
// goroutine.
func (g *Gate) Cancel() {
	g.once.Do(func() {
		close(g.done)
		if g.onCancel != nil {
			g.onCancel()
		}
	})
}

// Cancelled reports whether Cancel has been called.
func (g *Gate) Cancelled() bool {
	select {
	case <-g.done:
		return true
	default:
		return false
	}
}

// Done is closed once the gate is cancelled.
func (g *Gate) Done() <-chan struct{} { return g.done }

// Acquire blocks until one unit of demand is available and claims it.
// Unbounded demand is never decremented. It returns ErrCancelled once the
// gate is cancelled, or the context error when ctx ends first.
func (g *Gate) Acquire(ctx context.Context) error {
	for {
		if g.Cancelled() {
			return ErrCancelled
		}
		g.mu.Lock()
		if g.demand > 0 {
			if g.demand != streams.Unbounded {
				g.demand--
			}
			g.mu.Unlock()
			return nil
		}
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-g.done:
			return ErrCancelled
		case <-g.notify:
		}
	}
}

// Refuse completes the subscribe protocol for a subscriber the driver
// cannot serve: it hands over an inert subscription, then signals err.
func Refuse(sub streams.Subscriber, err error) {
	gate := NewGate(nil)
	gate.Cancel()
	sub.OnSubscribe(gate)
	sub.OnError(err)
}
