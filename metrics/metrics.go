// Package metrics packages OpenTelemetry instrumentation as bridge hooks:
// install the returned Hooks on a consumer and its delivery path is
// recorded through the supplied meter.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/keerthikanthn/streambridge/bridge"
	"github.com/keerthikanthn/streambridge/streams"
)

type options struct {
	endpoint string
}

// Option configures NewHooks.
type Option func(*options)

// WithEndpointName tags every measurement with an endpoint attribute.
// "consumer" by default.
func WithEndpointName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.endpoint = name
		}
	}
}

// NewHooks builds bridge hooks recording received messages, processing
// duration, processing failures, terminal signals and cancellations.
func NewHooks(meter metric.Meter, opts ...Option) (bridge.Hooks, error) {
	if meter == nil {
		return bridge.Hooks{}, errors.New("metrics: meter is required")
	}
	o := options{endpoint: "consumer"}
	for _, opt := range opts {
		opt(&o)
	}

	received, err := meter.Int64Counter("consumer.messages",
		metric.WithDescription("Messages handed to the subscriber"),
		metric.WithUnit("{message}"))
	if err != nil {
		return bridge.Hooks{}, fmt.Errorf("metrics: create instrument: %w", err)
	}
	duration, err := meter.Float64Histogram("consumer.processing.duration",
		metric.WithDescription("Time spent in the subscriber per message"),
		metric.WithUnit("s"))
	if err != nil {
		return bridge.Hooks{}, fmt.Errorf("metrics: create instrument: %w", err)
	}
	failures, err := meter.Int64Counter("consumer.failures",
		metric.WithDescription("Messages the subscriber failed to process"),
		metric.WithUnit("{message}"))
	if err != nil {
		return bridge.Hooks{}, fmt.Errorf("metrics: create instrument: %w", err)
	}
	terminations, err := meter.Int64Counter("consumer.terminations",
		metric.WithDescription("Terminal signals forwarded to the subscriber"),
		metric.WithUnit("{signal}"))
	if err != nil {
		return bridge.Hooks{}, fmt.Errorf("metrics: create instrument: %w", err)
	}
	cancellations, err := meter.Int64Counter("consumer.cancellations",
		metric.WithDescription("Subscriptions cancelled by stopping the consumer"),
		metric.WithUnit("{subscription}"))
	if err != nil {
		return bridge.Hooks{}, fmt.Errorf("metrics: create instrument: %w", err)
	}

	endpoint := attribute.String("endpoint", o.endpoint)
	attrs := metric.WithAttributes(endpoint)
	completeAttrs := metric.WithAttributes(endpoint, attribute.String("reason", "complete"))
	errorAttrs := metric.WithAttributes(endpoint, attribute.String("reason", "error"))
	ctx := context.Background()

	return bridge.Hooks{
		OnReceive: func(*streams.Message) {
			received.Add(ctx, 1, attrs)
		},
		OnProcessed: func(_ *streams.Message, elapsed time.Duration) {
			duration.Record(ctx, elapsed.Seconds(), attrs)
		},
		OnFailure: func(error) {
			failures.Add(ctx, 1, attrs)
		},
		OnTerminate: func(err error) {
			if err != nil {
				terminations.Add(ctx, 1, errorAttrs)
				return
			}
			terminations.Add(ctx, 1, completeAttrs)
		},
		OnCancel: func() {
			cancellations.Add(ctx, 1, attrs)
		},
	}, nil
}
