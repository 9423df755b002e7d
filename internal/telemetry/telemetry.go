// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry holds the OpenTelemetry instruments shared by the transport, event and auth packages.
//
// Instruments are created lazily from the global meter provider; when the provider fails to create one,
// a noop instrument is used instead.
package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentvault/a2a"
)

const instrumentationName = "github.com/agentvault/a2a"

var (
	rpcCalls            metric.Int64Counter
	rpcLatency          metric.Float64Histogram
	streamOpens         metric.Int64Counter
	streamReconnects    metric.Int64Counter
	eventsDropped       metric.Int64Counter
	activeSubscriptions metric.Int64UpDownCounter
	tokenExchanges      metric.Int64Counter
)

var metricOnce sync.Once

func newMetrics(m metric.Meter) {
	metricOnce.Do(func() {
		var err error

		rpcCalls, err = m.Int64Counter("a2a.client.rpc.calls",
			metric.WithDescription("Count of completed JSON-RPC calls"),
		)
		if err != nil {
			otel.Handle(err)
			rpcCalls = noop.Int64Counter{}
		}

		rpcLatency, err = m.Float64Histogram("a2a.client.rpc.duration",
			metric.WithDescription("Duration of JSON-RPC calls"),
			metric.WithUnit("s"),
		)
		if err != nil {
			otel.Handle(err)
			rpcLatency = noop.Float64Histogram{}
		}

		streamOpens, err = m.Int64Counter("a2a.client.stream.opens",
			metric.WithDescription("Count of event streams opened"),
		)
		if err != nil {
			otel.Handle(err)
			streamOpens = noop.Int64Counter{}
		}

		streamReconnects, err = m.Int64Counter("a2a.client.stream.reconnects",
			metric.WithDescription("Count of event stream reconnect attempts"),
		)
		if err != nil {
			otel.Handle(err)
			streamReconnects = noop.Int64Counter{}
		}

		eventsDropped, err = m.Int64Counter("a2a.client.events.dropped",
			metric.WithDescription("Count of events dropped from full listener queues"),
		)
		if err != nil {
			otel.Handle(err)
			eventsDropped = noop.Int64Counter{}
		}

		activeSubscriptions, err = m.Int64UpDownCounter("a2a.client.subscriptions.active",
			metric.WithDescription("Number of open task subscriptions"),
		)
		if err != nil {
			otel.Handle(err)
			activeSubscriptions = noop.Int64UpDownCounter{}
		}

		tokenExchanges, err = m.Int64Counter("a2a.client.oauth2.exchanges",
			metric.WithDescription("Count of OAuth2 client-credentials token exchanges"),
		)
		if err != nil {
			otel.Handle(err)
			tokenExchanges = noop.Int64Counter{}
		}
	})
}

func ensure() {
	newMetrics(otel.Meter(instrumentationName))
}

// Tracer returns the tracer of this module from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSpan starts a client span named name.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Outcome classifies err into a low-cardinality attribute value.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var (
		timeoutErr *a2a.TimeoutError
		connErr    *a2a.ConnectionError
		authErr    *a2a.AuthenticationError
		remoteErr  *a2a.RemoteAgentError
		protoErr   *a2a.ProtocolError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &remoteErr):
		return "remote"
	case errors.As(err, &protoErr):
		return "protocol"
	case errors.As(err, &connErr):
		return "connection"
	}
	return "error"
}

// RecordRPC records one completed unary call.
func RecordRPC(ctx context.Context, method string, elapsed time.Duration, err error) {
	ensure()
	attrs := metric.WithAttributes(
		attribute.String("rpc.method", method),
		attribute.String("outcome", Outcome(err)),
	)
	rpcCalls.Add(ctx, 1, attrs)
	rpcLatency.Record(ctx, elapsed.Seconds(), attrs)
}

// StreamOpened records one stream handshake.
func StreamOpened(ctx context.Context, method string, err error) {
	ensure()
	streamOpens.Add(ctx, 1, metric.WithAttributes(
		attribute.String("rpc.method", method),
		attribute.String("outcome", Outcome(err)),
	))
}

// StreamReconnected records one reconnect attempt.
func StreamReconnected(ctx context.Context, err error) {
	ensure()
	streamReconnects.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", Outcome(err))))
}

// EventsDropped records n events dropped from a listener queue.
func EventsDropped(ctx context.Context, n int64) {
	ensure()
	eventsDropped.Add(ctx, n)
}

// SubscriptionsChanged adjusts the number of open subscriptions by delta.
func SubscriptionsChanged(ctx context.Context, delta int64) {
	ensure()
	activeSubscriptions.Add(ctx, delta)
}

// TokenExchanged records one OAuth2 token exchange.
func TokenExchanged(ctx context.Context, err error) {
	ensure()
	tokenExchanges.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", Outcome(err))))
}
