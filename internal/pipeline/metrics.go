package pipeline

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dativo-io/cloak/internal/pii"
)

const meterName = "github.com/dativo-io/cloak/internal/pipeline"

var (
	entityCounter     metric.Int64Counter
	outcomeCounter    metric.Int64Counter
	durationHistogram metric.Float64Histogram
	metricsOnce       sync.Once
	metricsRegistered bool
)

func initMetrics() {
	meter := otel.Meter(meterName)
	var err error
	entityCounter, err = meter.Int64Counter(
		"cloak.pii.entities",
		metric.WithDescription("Entities sanitized, by placeholder category"),
	)
	if err != nil {
		return
	}
	outcomeCounter, err = meter.Int64Counter(
		"cloak.rewrite.outcomes",
		metric.WithDescription("Rewrite outcomes by kind"),
	)
	if err != nil {
		return
	}
	durationHistogram, err = meter.Float64Histogram(
		"cloak.analyze.duration",
		metric.WithDescription("End-to-end analysis latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return
	}
	metricsRegistered = true
}

func recordAnalysis(ctx context.Context, res *Result, elapsed time.Duration) {
	metricsOnce.Do(initMetrics)
	if !metricsRegistered {
		return
	}
	counts := make(map[pii.Category]int64)
	for _, e := range res.Entities {
		counts[e.Category]++
	}
	for cat, n := range counts {
		entityCounter.Add(ctx, n, metric.WithAttributes(attribute.String("category", string(cat))))
	}
	outcomeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(res.RewriteStatus))))
	durationHistogram.Record(ctx, float64(elapsed.Microseconds())/1000.0,
		metric.WithAttributes(attribute.Bool("restoration_incomplete", res.Restoration.Incomplete())))
}
