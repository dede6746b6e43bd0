package llm

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/dativo-io/cloak/internal/llm"

var (
	tokenCounter      metric.Int64Counter
	metricsOnce       sync.Once
	metricsRegistered bool
)

func initMetrics() {
	meter := otel.Meter(meterName)
	var err error
	tokenCounter, err = meter.Int64Counter(
		"cloak.llm.tokens",
		metric.WithDescription("Tokens consumed by rewrite calls"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return
	}
	metricsRegistered = true
}

// RecordUsage records the token usage of one successful generation call.
func RecordUsage(ctx context.Context, provider, model string, inputTokens, outputTokens int) {
	metricsOnce.Do(initMetrics)
	if !metricsRegistered {
		return
	}
	tokenCounter.Add(ctx, int64(inputTokens), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.String("direction", "input"),
	))
	tokenCounter.Add(ctx, int64(outputTokens), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.String("direction", "output"),
	))
}
