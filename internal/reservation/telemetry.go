package reservation

import (
	"context"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const scope = "github.com/ariefcatur/go-rental-storefront/internal/reservation"

type instruments struct {
	tracer    trace.Tracer
	outcomes  metric.Int64Counter
	retries   metric.Int64Counter
	reclaimed metric.Int64Counter
}

func counter(m metric.Meter, name, desc string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

func newInstruments() instruments {
	m := otel.Meter(scope)
	return instruments{
		tracer:    otel.Tracer(scope),
		outcomes:  counter(m, "reservation.outcomes", "Reservation operations by result code"),
		retries:   counter(m, "reservation.retries", "Attempts retried after Busy or Conflict"),
		reclaimed: counter(m, "reservation.intents.reclaimed", "Stale intents closed by reclaim"),
	}
}

func (i instruments) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return i.tracer.Start(ctx, "reservation."+op, trace.WithAttributes(attrs...))
}

// finish records the outcome on the span and the outcome counter.
func (i instruments) finish(ctx context.Context, span trace.Span, op string, err error) {
	code := Code(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
	}
	span.SetAttributes(attribute.String("reservation.outcome", code))
	span.End()
	i.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", code),
	))
}

func (i instruments) retried(ctx context.Context, op string) {
	i.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func traceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
