package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// NewExportProcessor returns a batch processor shipping spans over OTLP/HTTP
// when OTEL_EXPORTER_OTLP_ENDPOINT (or the traces-specific variant) is set.
// With neither set it returns (nil, nil) and runs stay local-only.
func NewExportProcessor(ctx context.Context) (sdktrace.SpanProcessor, error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" &&
		os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT") == "" {
		return nil, nil
	}
	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}
	return sdktrace.NewBatchSpanProcessor(exporter), nil
}
