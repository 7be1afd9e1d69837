package otel

import (
	"context"
	"sync"
	"time"

	eventbus "github.com/hanpama/cardgraph/internal/eventbus"
	events "github.com/hanpama/cardgraph/internal/events"
	opid "github.com/hanpama/cardgraph/internal/opid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service, version string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
			semconv.ServiceVersion(version),
		)),
	)
	otel.SetTracerProvider(tp)

	unsubscribe := Subscribe(otel.Tracer("cardgraph"))

	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

// Subscribe turns schema assembly and discovery events published on the
// global bus into spans of tracer. Assembly events are correlated through the
// operation id of their context.
func Subscribe(tracer trace.Tracer) (unsubscribe func()) {
	s := &subscriber{tracer: tracer}
	return s.register()
}

type subscriber struct {
	tracer        trace.Tracer
	assemblySpans sync.Map // opid -> trace.Span
}

func (s *subscriber) register() func() {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.SchemaAssemblyStart) {
			id, _ := opid.FromContext(ctx)
			_, span := s.tracer.Start(ctx, "schema.assemble")
			span.SetAttributes(attribute.Int("schema.definitions", e.Types))
			s.assemblySpans.Store(id, span)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.DirectiveResolved) {
			id, _ := opid.FromContext(ctx)
			v, ok := s.assemblySpans.Load(id)
			if !ok {
				return
			}
			attrs := []attribute.KeyValue{
				attribute.String("directive.name", e.Name),
				attribute.String("schema.coordinate", coordinate(e.Type, e.Field)),
			}
			if e.Err != nil {
				attrs = append(attrs, attribute.String("error", e.Err.Error()))
			}
			v.(trace.Span).AddEvent("directive.resolved", trace.WithAttributes(attrs...))
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.SchemaAssemblyFinish) {
			id, _ := opid.FromContext(ctx)
			v, ok := s.assemblySpans.LoadAndDelete(id)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(
				attribute.Int("schema.types", e.Types),
				attribute.StringSlice("directive.unused", e.Unused),
			)
			endWithError(span, e.Err)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.DiscoveryRegistered) {
			_, span := s.tracer.Start(ctx, "discovery.register",
				trace.WithTimestamp(time.Now().Add(-e.Duration)),
				trace.WithAttributes(
					attribute.String("service.name", e.Service),
					attribute.String("service.instance.id", e.InstanceID),
				))
			endWithError(span, e.Err)
		}),

		eventbus.Subscribe(func(ctx context.Context, e events.DiscoveryDeregistered) {
			_, span := s.tracer.Start(ctx, "discovery.deregister",
				trace.WithAttributes(
					attribute.String("service.name", e.Service),
					attribute.String("service.instance.id", e.InstanceID),
				))
			endWithError(span, e.Err)
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func endWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func coordinate(typeName, field string) string {
	if field == "" {
		return typeName
	}
	return typeName + "." + field
}
