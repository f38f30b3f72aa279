// Package nats adapts a JetStream pull consumer to a demand source.
//
// The pump pulls from the consumer's message iterator only while the
// subscriber holds outstanding demand, acks after a clean delivery and
// naks when the subscriber fails, so failed messages redeliver per the
// consumer's ack policy. The bridge performs no retry of its own: iterator
// failures, missing heartbeats included, end the subscription with
// OnError.
package nats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/keerthikanthn/streambridge/driver/internal/demand"
	"github.com/keerthikanthn/streambridge/logging"
	"github.com/keerthikanthn/streambridge/streams"
)

// Metadata keys set on delivered messages, alongside any message headers.
const (
	MetaSubject      = "subject"
	MetaStreamSeq    = "stream_sequence"
	MetaNumDelivered = "num_delivered"
)

const (
	defaultBatchSize = 64
	defaultExpiry    = 30 * time.Second
)

type options struct {
	logger    logging.Logger
	batchSize int
	expiry    time.Duration
}

// Option configures a Source.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBatchSize caps how many messages one pull request fetches. 64 by
// default.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithPullExpiry sets how long a pull request stays open. 30s by default;
// the iterator heartbeat runs at half this value.
func WithPullExpiry(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.expiry = d
		}
	}
}

// Source adapts a JetStream pull consumer. Multiple subscribers compete
// for the consumer's messages.
type Source struct {
	consumer jetstream.Consumer
	opts     options
}

// NewSource wraps an existing pull consumer.
func NewSource(consumer jetstream.Consumer, opts ...Option) (*Source, error) {
	if consumer == nil {
		return nil, errors.New("nats: consumer is required")
	}
	o := options{logger: logging.NewNop(), batchSize: defaultBatchSize, expiry: defaultExpiry}
	for _, opt := range opts {
		opt(&o)
	}
	return &Source{consumer: consumer, opts: o}, nil
}

// Subscribe opens a message iterator for sub. OnSubscribe is invoked
// synchronously; the pump runs on its own goroutine until the subscription
// is cancelled or the iterator fails.
func (s *Source) Subscribe(sub streams.Subscriber) {
	if sub == nil {
		return
	}
	iter, err := s.consumer.Messages(
		jetstream.PullMaxMessages(s.opts.batchSize),
		jetstream.PullExpiry(s.opts.expiry),
		jetstream.PullHeartbeat(s.opts.expiry/2),
	)
	if err != nil {
		demand.Refuse(sub, fmt.Errorf("nats: message iterator: %w", err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	gate := demand.NewGate(func() {
		cancel()
		iter.Stop()
	})
	sub.OnSubscribe(gate)
	go s.pump(ctx, iter, gate, sub)
}

func (s *Source) pump(ctx context.Context, iter jetstream.MessagesContext, gate *demand.Gate, sub streams.Subscriber) {
	for {
		if err := gate.Acquire(ctx); err != nil {
			return
		}
		msg, err := iter.Next()
		if err != nil {
			if gate.Cancelled() || errors.Is(err, jetstream.ErrMsgIteratorClosed) {
				return
			}
			s.opts.logger.Error("iterator failed", "error", err)
			gate.Cancel()
			sub.OnError(fmt.Errorf("nats: next message: %w", err))
			return
		}
		if err := sub.OnNext(convert(msg)); err != nil {
			s.opts.logger.Warn("subscriber failed, ending subscription", "error", err)
			_ = msg.Nak()
			gate.Cancel()
			return
		}
		_ = msg.Ack()
	}
}

func convert(msg jetstream.Msg) *streams.Message {
	md := make(map[string]string, len(msg.Headers())+3)
	for key, values := range msg.Headers() {
		if len(values) > 0 {
			md[key] = values[0]
		}
	}
	md[MetaSubject] = msg.Subject()
	if meta, err := msg.Metadata(); err == nil {
		md[MetaStreamSeq] = strconv.FormatUint(meta.Sequence.Stream, 10)
		md[MetaNumDelivered] = strconv.FormatUint(meta.NumDelivered, 10)
	}
	return streams.NewMessage(append([]byte(nil), msg.Data()...), streams.WithMetadata(md))
}
