package telemetry

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chatrelay/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func resetTracerProvider(t *testing.T) {
	t.Cleanup(func() {
		otel.SetTracerProvider(noop.NewTracerProvider())
	})
}

func TestInitTracer_Disabled(t *testing.T) {
	resetTracerProvider(t)
	var buf bytes.Buffer

	shutdown, err := InitTracer(context.Background(), "chatrelay-test", common.OtelConfig{Enabled: false}, &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "ignored")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Zero(t, buf.Len())
}

func TestInitTracer_WritesSpansToOut(t *testing.T) {
	resetTracerProvider(t)
	var buf bytes.Buffer

	shutdown, err := InitTracer(context.Background(), "chatrelay-test", common.OtelConfig{Enabled: true}, &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "relay.Handle")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "relay.Handle")
	assert.Contains(t, buf.String(), "chatrelay-test")
}

func TestInitTracer_WritesSpansToTraceDir(t *testing.T) {
	resetTracerProvider(t)
	dir := t.TempDir()

	shutdown, err := InitTracer(context.Background(), "chatrelay-test", common.OtelConfig{Enabled: true, TraceDir: dir}, nil)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "relay.Handle")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	content, err := os.ReadFile(filepath.Join(dir, "traces-"+time.Now().Format("2006-01-02")+".json"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "relay.Handle")
}

func TestInitTracer_BadTraceDir(t *testing.T) {
	resetTracerProvider(t)

	_, err := InitTracer(context.Background(), "chatrelay-test", common.OtelConfig{Enabled: true, TraceDir: "/nonexistent/path/that/should/not/exist"}, nil)
	assert.Error(t, err)
}

func TestInitTracer_OTLPEndpoint(t *testing.T) {
	resetTracerProvider(t)

	// the gRPC exporter connects lazily, so construction succeeds without a
	// collector listening
	shutdown, err := InitTracer(context.Background(), "chatrelay-test", common.OtelConfig{Enabled: true, Endpoint: "127.0.0.1:4317"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = shutdown(ctx)
}
