// Package kafka adapts a Kafka consumer group to a demand source.
//
// A Source serves one subscriber at a time: consumer group sessions cannot
// be shared, so a second Subscribe while one is active is refused with
// ErrBusy. Messages from concurrently owned partitions are serialized
// before delivery and marked consumed only after a clean delivery, so an
// unconsumed message is redelivered to the group after rebalancing.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/IBM/sarama"
	"github.com/samber/lo"

	"github.com/keerthikanthn/streambridge/driver/internal/demand"
	"github.com/keerthikanthn/streambridge/logging"
	"github.com/keerthikanthn/streambridge/streams"
)

// Metadata keys set on delivered messages, alongside the record headers.
const (
	MetaTopic     = "topic"
	MetaPartition = "partition"
	MetaOffset    = "offset"
	MetaKey       = "key"
)

// ErrBusy reports that the source already serves a subscriber.
var ErrBusy = errors.New("kafka: source already subscribed")

type options struct {
	logger        logging.Logger
	clientID      string
	initialOffset int64
	version       sarama.KafkaVersion
	config        *sarama.Config
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

// WithClientID sets the Kafka client ID.
func WithClientID(id string) Option {
	return func(o *options) {
		if id != "" {
			o.clientID = id
		}
	}
}

// WithInitialOffset sets where a new group starts consuming, either
// sarama.OffsetNewest or sarama.OffsetOldest. Newest by default.
func WithInitialOffset(offset int64) Option {
	return func(o *options) {
		o.initialOffset = offset
	}
}

// WithVersion sets the Kafka protocol version.
func WithVersion(version sarama.KafkaVersion) Option {
	return func(o *options) {
		o.version = version
	}
}

// WithConfig replaces the generated sarama configuration entirely, for
// setups that need TLS or SASL.
func WithConfig(cfg *sarama.Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// Source adapts one topic consumed through a consumer group.
type Source struct {
	brokers []string
	group   string
	topic   string
	opts    options

	mu     sync.Mutex
	active bool
}

// NewSource builds a source over brokers for the given group and topic.
func NewSource(brokers []string, group, topic string, opts ...Option) (*Source, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: brokers are required")
	}
	if group == "" {
		return nil, errors.New("kafka: group is required")
	}
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	o := options{
		logger:        logging.NewNop(),
		clientID:      "streambridge",
		initialOffset: sarama.OffsetNewest,
		version:       sarama.V2_3_0_0,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Source{brokers: brokers, group: group, topic: topic, opts: o}, nil
}

// Subscribe opens a consumer group session for sub. OnSubscribe is invoked
// synchronously; consumption runs on its own goroutine across rebalances
// until the subscription is cancelled or the group fails.
func (s *Source) Subscribe(sub streams.Subscriber) {
	if sub == nil {
		return
	}
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		demand.Refuse(sub, ErrBusy)
		return
	}
	s.active = true
	s.mu.Unlock()

	group, err := sarama.NewConsumerGroup(s.brokers, s.group, s.saramaConfig())
	if err != nil {
		s.release()
		demand.Refuse(sub, fmt.Errorf("kafka: create consumer group: %w", err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	gate := demand.NewGate(cancel)
	sub.OnSubscribe(gate)
	go s.consume(ctx, group, gate, sub)
}

func (s *Source) release() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

func (s *Source) saramaConfig() *sarama.Config {
	if s.opts.config != nil {
		return s.opts.config
	}
	cfg := sarama.NewConfig()
	cfg.ClientID = s.opts.clientID
	cfg.Version = s.opts.version
	cfg.Consumer.Offsets.Initial = s.opts.initialOffset
	return cfg
}

func (s *Source) consume(ctx context.Context, group sarama.ConsumerGroup, gate *demand.Gate, sub streams.Subscriber) {
	defer func() {
		if err := group.Close(); err != nil {
			s.opts.logger.Warn("close consumer group", "group", s.group, "error", err)
		}
		s.release()
	}()

	handler := &claimHandler{ctx: ctx, gate: gate, sub: sub}
	for {
		err := group.Consume(ctx, []string{s.topic}, handler)
		if subErr := handler.failure(); subErr != nil {
			s.opts.logger.Warn("subscriber failed, ending subscription",
				"topic", s.topic, "error", subErr)
			return
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || gate.Cancelled() {
				return
			}
			s.opts.logger.Error("consume failed", "topic", s.topic, "error", err)
			gate.Cancel()
			sub.OnError(fmt.Errorf("kafka: consume: %w", err))
			return
		}
		if ctx.Err() != nil || gate.Cancelled() {
			return
		}
		// rebalance: loop into a fresh session
	}
}

// claimHandler delivers claim messages through the gate. Claims for
// different partitions run concurrently; deliverMu serializes them so the
// subscriber sees one message at a time.
type claimHandler struct {
	ctx  context.Context
	gate *demand.Gate
	sub  streams.Subscriber

	deliverMu sync.Mutex
	mu        sync.Mutex
	subErr    error
}

func (h *claimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *claimHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		h.deliverMu.Lock()
		if err := h.gate.Acquire(h.ctx); err != nil {
			h.deliverMu.Unlock()
			return nil
		}
		err := h.sub.OnNext(convert(msg))
		h.deliverMu.Unlock()
		if err != nil {
			h.fail(err)
			h.gate.Cancel()
			return nil
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

func (h *claimHandler) fail(err error) {
	h.mu.Lock()
	if h.subErr == nil {
		h.subErr = err
	}
	h.mu.Unlock()
}

func (h *claimHandler) failure() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.subErr
}

func convert(msg *sarama.ConsumerMessage) *streams.Message {
	md := lo.SliceToMap(msg.Headers, func(h *sarama.RecordHeader) (string, string) {
		return string(h.Key), string(h.Value)
	})
	md[MetaTopic] = msg.Topic
	md[MetaPartition] = strconv.FormatInt(int64(msg.Partition), 10)
	md[MetaOffset] = strconv.FormatInt(msg.Offset, 10)
	if len(msg.Key) > 0 {
		md[MetaKey] = string(msg.Key)
	}
	return streams.NewMessage(append([]byte(nil), msg.Value...), streams.WithMetadata(md))
}
