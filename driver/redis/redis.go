// Package redis adapts a Redis pub/sub channel to a demand source.
//
// Each Subscribe opens its own pub/sub connection, so every subscriber
// receives the full message flow (Redis pub/sub fans out). Delivery waits
// for subscriber demand; the client's internal buffer provides the slack
// in between.
package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/keerthikanthn/streambridge/driver/internal/demand"
	"github.com/keerthikanthn/streambridge/logging"
	"github.com/keerthikanthn/streambridge/streams"
)

// MetaChannel carries the Redis channel a message arrived on.
const MetaChannel = "channel"

type options struct {
	logger logging.Logger
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

// Source adapts one Redis pub/sub channel.
type Source struct {
	client  redis.UniversalClient
	channel string
	opts    options
}

// NewSource wraps an existing client. The source never closes the client.
func NewSource(client redis.UniversalClient, channel string, opts ...Option) (*Source, error) {
	if client == nil {
		return nil, errors.New("redis: client is required")
	}
	if channel == "" {
		return nil, errors.New("redis: channel is required")
	}
	o := options{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Source{client: client, channel: channel, opts: o}, nil
}

// Subscribe opens a pub/sub connection for sub. OnSubscribe is invoked
// synchronously; the pump confirms the Redis subscription before reading
// so a publish issued right after Subscribe is not lost.
func (s *Source) Subscribe(sub streams.Subscriber) {
	if sub == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	ps := s.client.Subscribe(ctx, s.channel)
	gate := demand.NewGate(func() {
		cancel()
		_ = ps.Close()
	})
	sub.OnSubscribe(gate)
	go s.pump(ctx, ps, gate, sub)
}

func (s *Source) pump(ctx context.Context, ps *redis.PubSub, gate *demand.Gate, sub streams.Subscriber) {
	if _, err := ps.Receive(ctx); err != nil {
		if gate.Cancelled() {
			return
		}
		gate.Cancel()
		sub.OnError(fmt.Errorf("redis: subscribe: %w", err))
		return
	}

	ch := ps.Channel()
	for {
		if err := gate.Acquire(ctx); err != nil {
			return
		}
		select {
		case m, ok := <-ch:
			if !ok {
				if gate.Cancelled() {
					return
				}
				gate.Cancel()
				sub.OnComplete()
				return
			}
			msg := streams.NewMessage([]byte(m.Payload), streams.WithMeta(MetaChannel, m.Channel))
			if err := sub.OnNext(msg); err != nil {
				s.opts.logger.Warn("subscriber failed, ending subscription",
					"channel", s.channel, "error", err)
				gate.Cancel()
				return
			}
		case <-gate.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}
