// Package google adapts a Cloud Pub/Sub subscription to a demand source.
//
// Each Subscribe call opens its own receive session against the same
// subscription, so multiple subscribers compete for messages. Delivery
// waits for subscriber demand before a message is handed over; the message
// is acked after a clean delivery and nacked when the subscriber fails or
// the subscription is cancelled mid-flight.
package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub"

	"github.com/keerthikanthn/streambridge/driver/internal/demand"
	"github.com/keerthikanthn/streambridge/logging"
	"github.com/keerthikanthn/streambridge/streams"
)

// Metadata keys set on delivered messages.
const (
	MetaMessageID   = "message_id"
	MetaPublishTime = "publish_time"
	MetaOrderingKey = "ordering_key"
)

type options struct {
	logger         logging.Logger
	maxOutstanding int
	maxExtension   time.Duration
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

// WithMaxOutstanding caps how many received messages the client may hold
// while they wait for demand. 1 by default, which keeps delivery strictly
// demand-paced.
func WithMaxOutstanding(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxOutstanding = n
		}
	}
}

// WithMaxExtension bounds how long ack deadlines are extended.
func WithMaxExtension(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxExtension = d
		}
	}
}

// Source adapts one Cloud Pub/Sub subscription.
type Source struct {
	client       *gcppubsub.Client
	subscription string
	opts         options
}

// NewSource wraps an existing client. The source never closes the client.
func NewSource(client *gcppubsub.Client, subscription string, opts ...Option) (*Source, error) {
	if client == nil {
		return nil, errors.New("google: client is required")
	}
	if subscription == "" {
		return nil, errors.New("google: subscription is required")
	}
	o := options{logger: logging.NewNop(), maxOutstanding: 1}
	for _, opt := range opts {
		opt(&o)
	}
	return &Source{client: client, subscription: subscription, opts: o}, nil
}

// Subscribe starts a receive session for sub. OnSubscribe is invoked
// synchronously; the session runs on its own goroutine until the
// subscription is cancelled or the service fails.
func (s *Source) Subscribe(sub streams.Subscriber) {
	if sub == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	gate := demand.NewGate(cancel)
	sub.OnSubscribe(gate)
	go s.receive(ctx, gate, sub)
}

func (s *Source) receive(ctx context.Context, gate *demand.Gate, sub streams.Subscriber) {
	gsub := s.client.Subscription(s.subscription)
	settings := gsub.ReceiveSettings
	settings.Synchronous = true
	settings.NumGoroutines = 1
	settings.MaxOutstandingMessages = s.opts.maxOutstanding
	if s.opts.maxExtension > 0 {
		settings.MaxExtension = s.opts.maxExtension
	}
	gsub.ReceiveSettings = settings

	err := gsub.Receive(ctx, func(_ context.Context, m *gcppubsub.Message) {
		if err := gate.Acquire(ctx); err != nil {
			m.Nack()
			return
		}
		if err := sub.OnNext(convert(m)); err != nil {
			s.opts.logger.Warn("subscriber failed, ending receive",
				"subscription", s.subscription, "error", err)
			m.Nack()
			gate.Cancel()
			return
		}
		m.Ack()
	})

	if err != nil && !errors.Is(err, context.Canceled) && !gate.Cancelled() {
		s.opts.logger.Error("receive failed", "subscription", s.subscription, "error", err)
		gate.Cancel()
		sub.OnError(fmt.Errorf("google: receive: %w", err))
	}
}

func convert(m *gcppubsub.Message) *streams.Message {
	opts := []streams.MessageOption{
		streams.WithMetadata(m.Attributes),
		streams.WithMeta(MetaMessageID, m.ID),
		streams.WithMeta(MetaPublishTime, m.PublishTime.Format(time.RFC3339Nano)),
	}
	if m.OrderingKey != "" {
		opts = append(opts, streams.WithMeta(MetaOrderingKey, m.OrderingKey))
	}
	return streams.NewMessage(append([]byte(nil), m.Data...), opts...)
}
