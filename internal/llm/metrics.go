package llm

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/sushiva/omni-channel-ai-servicing/internal/llm"

var (
	tokenHistogram    metric.Int64Histogram
	tokenMetricsOnce  sync.Once
	tokenMetricsReady bool
)

func initTokenMetrics() {
	var err error
	tokenHistogram, err = otel.Meter(meterName).Int64Histogram(
		"servicing.llm.tokens",
		metric.WithDescription("Tokens per generation call, split by direction"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return
	}
	tokenMetricsReady = true
}

// RecordTokenMetrics records input and output token counts for one call.
func RecordTokenMetrics(ctx context.Context, provider, model string, inputTokens, outputTokens int) {
	tokenMetricsOnce.Do(initTokenMetrics)
	if !tokenMetricsReady {
		return
	}
	base := []attribute.KeyValue{
		attribute.String("provider", provider),
		attribute.String("model", model),
	}
	tokenHistogram.Record(ctx, int64(inputTokens),
		metric.WithAttributes(append(base, attribute.String("direction", "input"))...))
	tokenHistogram.Record(ctx, int64(outputTokens),
		metric.WithAttributes(append(base, attribute.String("direction", "output"))...))
}
