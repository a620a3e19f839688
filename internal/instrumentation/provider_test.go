package instrumentation

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enabledConfig(metricsExporter, tracingExporter string) Config {
	return Config{
		ServiceName:       "gmail-mcp-test",
		ServiceVersion:    "1.0.0",
		ServiceInstanceID: "test-instance",
		Enabled:           true,
		MetricsExporter:   metricsExporter,
		TracingExporter:   tracingExporter,
		TraceSamplingRate: 1,
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false, MetricsExporter: "bogus"})
	require.NoError(t, err)

	assert.False(t, provider.Enabled())
	assert.False(t, provider.HasPrometheusExporter())
	require.NotNil(t, provider.Metrics())
	assert.NotNil(t, provider.Tracer("test"))

	// no-op recorders must be safe to call
	provider.Metrics().RecordToolInvocation(context.Background(), "gmail.get_message", StatusSuccess, time.Millisecond)
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestNewProvider_Prometheus(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()

	provider, err := NewProvider(ctx, enabledConfig(ExporterPrometheus, ExporterNone), WithRegistry(reg), WithoutGlobal())
	require.NoError(t, err)
	defer func() { _ = provider.Shutdown(ctx) }()

	assert.True(t, provider.Enabled())
	assert.True(t, provider.HasPrometheusExporter())

	provider.Metrics().RecordToolInvocation(ctx, "gmail.search_messages", StatusSuccess, 20*time.Millisecond)

	rec := httptest.NewRecorder()
	provider.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tool="gmail.search_messages"`)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewProvider_PrometheusOwnRegistry(t *testing.T) {
	ctx := context.Background()

	// two providers side by side must not collide on registration
	first, err := NewProvider(ctx, enabledConfig(ExporterPrometheus, ExporterNone), WithoutGlobal())
	require.NoError(t, err)
	defer func() { _ = first.Shutdown(ctx) }()

	second, err := NewProvider(ctx, enabledConfig(ExporterPrometheus, ExporterNone), WithoutGlobal())
	require.NoError(t, err)
	defer func() { _ = second.Shutdown(ctx) }()

	rec := httptest.NewRecorder()
	second.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNewProvider_Stdout(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer

	provider, err := NewProvider(ctx, enabledConfig(ExporterStdout, ExporterStdout),
		WithStdoutWriter(&buf), WithoutGlobal())
	require.NoError(t, err)

	assert.False(t, provider.HasPrometheusExporter())

	_, span := provider.Tracer("test").Start(ctx, "stdout-span")
	span.End()
	provider.Metrics().RecordToolInvocation(ctx, "gmail.get_message", StatusSuccess, time.Millisecond)

	require.NoError(t, provider.Shutdown(ctx))
	assert.Contains(t, buf.String(), "stdout-span")

	rec := httptest.NewRecorder()
	provider.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:    "unknown metrics exporter",
			config:  enabledConfig("statsd", ExporterNone),
			wantErr: EnvMetricsExporter,
		},
		{
			name:    "unknown tracing exporter",
			config:  enabledConfig(ExporterPrometheus, "jaeger"),
			wantErr: EnvTracingExporter,
		},
		{
			name:    "otlp without endpoint",
			config:  enabledConfig(ExporterPrometheus, ExporterOTLP),
			wantErr: EnvOTLPEndpoint,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(context.Background(), tt.config, WithoutGlobal())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProvider_ShutdownTwice(t *testing.T) {
	ctx := context.Background()
	provider, err := NewProvider(ctx, enabledConfig(ExporterPrometheus, ExporterNone), WithoutGlobal())
	require.NoError(t, err)

	require.NoError(t, provider.Shutdown(ctx))
	// the SDK reports the second shutdown, it must not panic
	assert.NotPanics(t, func() { _ = provider.Shutdown(ctx) })
}
