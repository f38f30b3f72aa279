// Package inmem provides an in-process message channel together with its
// demand-source side: Send pushes messages into a bounded queue, and each
// subscriber drains the queue only while it holds outstanding demand.
// Useful for tests and for wiring same-process producers to a consumer.
package inmem

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/keerthikanthn/streambridge/driver/internal/demand"
	"github.com/keerthikanthn/streambridge/logging"
	"github.com/keerthikanthn/streambridge/streams"
)

// MetaMessageID carries the channel-assigned message ID.
const MetaMessageID = "message_id"

// ErrClosed is returned by Send once the channel has been closed.
var ErrClosed = errors.New("inmem: channel closed")

const defaultBufferSize = 64

type options struct {
	bufferSize int
	logger     logging.Logger
}

// Option configures a Channel.
type Option func(*options)

// WithBufferSize sets the queue capacity. 64 by default.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufferSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Channel is an in-process push channel that doubles as a demand source.
// Multiple subscribers compete for messages (queue semantics); a single
// subscriber sees messages in Send order.
type Channel struct {
	opts   options
	queue  chan *streams.Message
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

// New builds an open channel.
func New(opts ...Option) *Channel {
	o := options{bufferSize: defaultBufferSize, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		opts:   o,
		queue:  make(chan *streams.Message, o.bufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Send queues one message, assigning a message ID when none is set. It
// blocks while the queue is full, honors ctx and fails with ErrClosed once
// the channel is closed.
func (c *Channel) Send(ctx context.Context, msg *streams.Message) error {
	if msg == nil {
		return errors.New("inmem: message is required")
	}
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	if msg.Meta(MetaMessageID) == "" {
		msg = streams.NewMessage(msg.Payload(),
			streams.WithMetadata(msg.Metadata()),
			streams.WithMeta(MetaMessageID, uuid.NewString()))
	}
	select {
	case c.queue <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the channel. Already queued messages are still delivered to
// subscribers with demand; after the queue drains, subscribers receive
// OnComplete. Idempotent.
func (c *Channel) Close() error {
	c.once.Do(c.cancel)
	return nil
}

// Subscribe attaches sub. OnSubscribe is invoked synchronously before
// Subscribe returns; delivery runs on a dedicated goroutine.
func (c *Channel) Subscribe(sub streams.Subscriber) {
	gate := demand.NewGate(nil)
	sub.OnSubscribe(gate)
	c.wg.Add(1)
	go c.pump(gate, sub)
}

func (c *Channel) pump(gate *demand.Gate, sub streams.Subscriber) {
	defer c.wg.Done()
	for {
		if err := gate.Acquire(c.ctx); err != nil {
			if errors.Is(err, demand.ErrCancelled) {
				return
			}
			// closed while waiting for demand
			c.complete(gate, sub)
			return
		}

		select {
		case msg := <-c.queue:
			if !c.deliver(gate, sub, msg) {
				return
			}
			continue
		default:
		}

		select {
		case msg := <-c.queue:
			if !c.deliver(gate, sub, msg) {
				return
			}
		case <-gate.Done():
			return
		case <-c.ctx.Done():
			c.complete(gate, sub)
			return
		}
	}
}

// deliver hands one message over. A subscriber failure ends the
// subscription without a terminal signal: the failure was the subscriber's
// own and has already been observed on its side.
func (c *Channel) deliver(gate *demand.Gate, sub streams.Subscriber, msg *streams.Message) bool {
	if err := sub.OnNext(msg); err != nil {
		c.opts.logger.Warn("subscriber failed, ending delivery", "error", err)
		gate.Cancel()
		return false
	}
	return true
}

func (c *Channel) complete(gate *demand.Gate, sub streams.Subscriber) {
	gate.Cancel()
	sub.OnComplete()
}
