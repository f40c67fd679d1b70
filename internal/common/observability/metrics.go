package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	tickCounter   otelmetric.Int64Counter
	tickDuration  otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	tickCounter, _ := meter.Int64Counter(
		"jobs.ticks",
		otelmetric.WithDescription("Number of periodic job ticks processed"),
	)

	tickDuration, _ := meter.Float64Histogram(
		"jobs.tick.duration",
		otelmetric.WithDescription("Periodic job tick duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		tickCounter:   tickCounter,
		tickDuration:  tickDuration,
	}
}

func (o *Observability) RecordTick(ctx context.Context, job, status string) {
	if o.tickCounter != nil {
		o.tickCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("job", job),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordTickDuration(ctx context.Context, job string, duration time.Duration) {
	if o.tickDuration != nil {
		o.tickDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("job", job),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
