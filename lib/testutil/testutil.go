package testutil

import (
	"context"
	"listingbump/lib/telemetry"
	"sync"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// the otel globals only delegate to the first provider set, so one pair is shared by every
// test in the binary.
var (
	setupOnce      sync.Once
	tracerProvider *trace.TracerProvider
	metricReader   *metric.ManualReader
)

// Telemetry gives a test access to the spans and metrics recorded while it runs.
type Telemetry struct {
	Spans  *tracetest.SpanRecorder
	reader *metric.ManualReader
}

// SetupTelemetry installs in-memory otel providers and a span recorder that only sees spans
// ended during the calling test.
func SetupTelemetry(t testing.TB) Telemetry {
	setupOnce.Do(func() {
		telemetry.InitSlog(testing.Verbose())
		metricReader = metric.NewManualReader()
		tracerProvider = trace.NewTracerProvider()
		otel.SetTracerProvider(tracerProvider)
		otel.SetMeterProvider(metric.NewMeterProvider(metric.WithReader(metricReader)))
	})

	spans := tracetest.NewSpanRecorder()
	tracerProvider.RegisterSpanProcessor(spans)
	t.Cleanup(func() {
		tracerProvider.UnregisterSpanProcessor(spans)
	})

	return Telemetry{Spans: spans, reader: metricReader}
}

// SpanNames lists the names of the ended spans in the order they ended.
func (tel Telemetry) SpanNames() []string {
	var names []string
	for _, span := range tel.Spans.Ended() {
		names = append(names, span.Name())
	}
	return names
}

// Int64Sum totals the data points of the int64 counter name that carry every attribute in
// attrs. Counters are cumulative over the test binary, compare values taken before and after.
func (tel Telemetry) Int64Sum(t testing.TB, name string, attrs ...attribute.KeyValue) int64 {
	var rm metricdata.ResourceMetrics
	err := tel.reader.Collect(context.Background(), &rm)
	if err != nil {
		t.Fatal(err)
	}

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, point := range sum.DataPoints {
				if hasAttributes(point.Attributes, attrs) {
					total += point.Value
				}
			}
		}
	}
	return total
}

func hasAttributes(set attribute.Set, attrs []attribute.KeyValue) bool {
	for _, kv := range attrs {
		value, ok := set.Value(kv.Key)
		if !ok || value != kv.Value {
			return false
		}
	}
	return true
}
