package otel

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

func TestInitTracer_ExportsSpansOnShutdown(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	var buf bytes.Buffer
	shutdown, err := InitTracer("llm-proxy", "0.7.0", zap.NewNop(), &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "gateway.chat")
	span.End()

	require.NoError(t, shutdown(context.Background()))

	out := buf.String()
	assert.Contains(t, out, `"gateway.chat"`)
	assert.Contains(t, out, `"llm-proxy"`)
	assert.Contains(t, out, `"0.7.0"`)
}

func TestInitTracer_JoinsInboundTrace(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	shutdown, err := InitTracer("llm-proxy", "0.7.0", zap.NewNop(), &bytes.Buffer{})
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	carrier := map[string]string{
		"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	}
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), mapCarrier(carrier))

	_, span := otel.Tracer("test").Start(ctx, "gateway.stream")
	defer span.End()

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", span.SpanContext().TraceID().String())
}

type mapCarrier map[string]string

func (c mapCarrier) Get(key string) string { return c[key] }

func (c mapCarrier) Set(key, value string) { c[key] = value }

func (c mapCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
