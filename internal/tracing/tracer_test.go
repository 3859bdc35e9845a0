package tracing

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/kakhl/internal/config"
)

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(config.TracingConfig{Enabled: false})
	require.NoError(t, err)
	require.False(t, provider.Enabled())

	// The no-op tracer still hands out usable spans.
	tracer := provider.Tracer()
	require.NotNil(t, tracer)
	ctx, span := tracer.Start(context.Background(), "highlight.dispatch")
	require.NotNil(t, ctx)
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_FileExporterWritesSpans(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces", "traces.jsonl")

	provider, err := NewProvider(config.TracingConfig{
		Enabled:     true,
		Exporter:    "file",
		FilePath:    tracePath,
		SampleRate:  1.0,
		ServiceName: "kakhl-test",
	})
	require.NoError(t, err)
	require.True(t, provider.Enabled())

	_, span := provider.Tracer().Start(context.Background(), "session.dispatch")
	span.SetAttributes(attribute.String("buffer.name", "main.go"))
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))

	data, err := os.ReadFile(tracePath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.NotEmpty(t, lines)

	var record SpanRecord
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	require.Equal(t, "session.dispatch", record.Name)
	require.Equal(t, "main.go", record.Attributes["buffer.name"])
	require.NotEmpty(t, record.TraceID)
}

func TestNewProvider_NoneExporterStillCorrelates(t *testing.T) {
	provider, err := NewProvider(config.TracingConfig{
		Enabled:  true,
		Exporter: "none",
	})
	require.NoError(t, err)
	require.True(t, provider.Enabled())

	ctx, parent := provider.Tracer().Start(context.Background(), "parent")
	_, child := provider.Tracer().Start(ctx, "child")
	require.Equal(t, parent.SpanContext().TraceID(), child.SpanContext().TraceID())
	child.End()
	parent.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_FileExporterRequiresPath(t *testing.T) {
	_, err := NewProvider(config.TracingConfig{Enabled: true, Exporter: "file"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "file_path required")
}

func TestNewProvider_UnsupportedExporter(t *testing.T) {
	_, err := NewProvider(config.TracingConfig{Enabled: true, Exporter: "carrier-pigeon"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported exporter")
}

func TestNewProvider_ZeroSampleRateDefaultsToFull(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), "traces.jsonl")
	provider, err := NewProvider(config.TracingConfig{
		Enabled:  true,
		Exporter: "file",
		FilePath: tracePath,
	})
	require.NoError(t, err)

	_, span := provider.Tracer().Start(context.Background(), "sampled")
	require.True(t, span.SpanContext().IsSampled())
	span.End()

	require.NoError(t, provider.Shutdown(context.Background()))
}
