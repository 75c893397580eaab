package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/air13x/air13x/internal/telemetry"

// ProviderMetrics records outbound provider calls and directory cache behavior.
type ProviderMetrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	cacheHit        metric.Int64Counter
	cacheMiss       metric.Int64Counter
}

// NewProviderMetrics creates the provider instruments on the global meter.
func NewProviderMetrics() (*ProviderMetrics, error) {
	meter := otel.Meter(meterName)

	requestDuration, err := meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of provider requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"provider.request.total",
		metric.WithDescription("Total number of provider requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	cacheHit, err := meter.Int64Counter(
		"provider.cache.hit",
		metric.WithDescription("Number of directory cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	cacheMiss, err := meter.Int64Counter(
		"provider.cache.miss",
		metric.WithDescription("Number of directory cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	return &ProviderMetrics{
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHit:        cacheHit,
		cacheMiss:       cacheMiss,
	}, nil
}

// RecordRequest records one provider request.
func (m *ProviderMetrics) RecordRequest(provider, operation string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("provider.name", provider),
		attribute.String("provider.operation", operation),
		attribute.Bool("error", err != nil),
	)

	// Background context: the request context may already be cancelled.
	ctx := context.Background()
	m.requestDuration.Record(ctx, duration.Seconds(), attrs)
	m.requestTotal.Add(ctx, 1, attrs)
}

// RecordCacheHit records a directory cache hit.
func (m *ProviderMetrics) RecordCacheHit(provider, operation string) {
	m.cacheHit.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("provider.name", provider),
		attribute.String("provider.operation", operation),
	))
}

// RecordCacheMiss records a directory cache miss.
func (m *ProviderMetrics) RecordCacheMiss(provider, operation string) {
	m.cacheMiss.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("provider.name", provider),
		attribute.String("provider.operation", operation),
	))
}

// DashboardMetrics records session fetch outcomes.
type DashboardMetrics struct {
	fetchDuration metric.Float64Histogram
	slotOutcome   metric.Int64Counter
	activeFetches metric.Int64UpDownCounter
}

// NewDashboardMetrics creates the aggregator instruments on the global meter.
func NewDashboardMetrics() (*DashboardMetrics, error) {
	meter := otel.Meter(meterName)

	fetchDuration, err := meter.Float64Histogram(
		"dashboard.fetch.duration",
		metric.WithDescription("Time from trigger until every slot settled, in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	slotOutcome, err := meter.Int64Counter(
		"dashboard.slot.outcome",
		metric.WithDescription("Settled slots by kind and state"),
		metric.WithUnit("{slot}"),
	)
	if err != nil {
		return nil, err
	}

	activeFetches, err := meter.Int64UpDownCounter(
		"dashboard.fetch.active",
		metric.WithDescription("Sessions currently fetching"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	return &DashboardMetrics{
		fetchDuration: fetchDuration,
		slotOutcome:   slotOutcome,
		activeFetches: activeFetches,
	}, nil
}

// FetchStarted marks a session entering the fetching state.
func (m *DashboardMetrics) FetchStarted() {
	m.activeFetches.Add(context.Background(), 1)
}

// FetchSettled marks a session settling after duration.
func (m *DashboardMetrics) FetchSettled(duration time.Duration) {
	ctx := context.Background()
	m.activeFetches.Add(ctx, -1)
	m.fetchDuration.Record(ctx, duration.Seconds())
}

// RecordSlot records how one slot settled. errorKind is empty on success.
func (m *DashboardMetrics) RecordSlot(slot, errorKind string) {
	state := "ok"
	if errorKind != "" {
		state = "error"
	}
	m.slotOutcome.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("slot", slot),
		attribute.String("state", state),
		attribute.String("error.kind", errorKind),
	))
}
