package instrumentation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics backed by a manual reader so tests can
// inspect what was recorded.
func newTestMetrics(t *testing.T, detailed bool) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"), detailed)
	require.NoError(t, err)
	return m, reader
}

// sumFor returns the int64 sum data points of the named counter.
func sumFor(t *testing.T, reader *sdkmetric.ManualReader, name string) []metricdata.DataPoint[int64] {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			return sum.DataPoints
		}
	}
	return nil
}

func attrValue(set attribute.Set, key string) string {
	v, ok := set.Value(attribute.Key(key))
	if !ok {
		return ""
	}
	return v.AsString()
}

func TestMetrics_RecordGoogleAPIOperation(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.RecordGoogleAPIOperation(ctx, ServiceGmail, OperationSearch, StatusSuccess, 120*time.Millisecond)
	m.RecordGoogleAPIOperation(ctx, ServiceGmail, OperationSearch, StatusSuccess, 80*time.Millisecond)
	m.RecordGoogleAPIOperation(ctx, ServiceGmail, OperationGet, StatusError, 40*time.Millisecond)

	points := sumFor(t, reader, "google_api_operations_total")
	require.Len(t, points, 2)

	counts := map[string]int64{}
	for _, p := range points {
		counts[attrValue(p.Attributes, attrOperation)+"/"+attrValue(p.Attributes, attrStatus)] = p.Value
	}
	assert.Equal(t, int64(2), counts["search/success"])
	assert.Equal(t, int64(1), counts["get/error"])
}

func TestMetrics_RecordProviderError_BoundsKind(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.RecordProviderError(ctx, OperationGet, KindProviderNotFound)
	m.RecordProviderError(ctx, OperationGet, "some free-form error text")

	points := sumFor(t, reader, "gmail_provider_errors_total")
	require.Len(t, points, 2)

	kinds := map[string]bool{}
	for _, p := range points {
		kinds[attrValue(p.Attributes, attrKind)] = true
	}
	assert.True(t, kinds[KindProviderNotFound])
	assert.True(t, kinds[StatusUnknown])
}

func TestMetrics_RecordOAuth(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.RecordOAuthTokenRefresh(ctx, OAuthResultSuccess)
	m.RecordOAuthTokenRefresh(ctx, OAuthResultFailure)
	m.RecordOAuthTokenRefresh(ctx, OAuthResultExpired)
	m.RecordOAuthAuth(ctx, OAuthResultSuccess)

	assert.Len(t, sumFor(t, reader, "oauth_token_refresh_total"), 3)
	assert.Len(t, sumFor(t, reader, "oauth_auth_total"), 1)
}

func TestMetrics_RecordToolInvocation(t *testing.T) {
	tests := []struct {
		name     string
		detailed bool
		wantKind string
	}{
		{name: "kind omitted without detailed labels", detailed: false, wantKind: ""},
		{name: "kind included with detailed labels", detailed: true, wantKind: KindProviderNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, reader := newTestMetrics(t, tt.detailed)

			m.RecordToolInvocationWithKind(context.Background(), "gmail.get_message", StatusError, KindProviderNotFound, 10*time.Millisecond)

			points := sumFor(t, reader, "mcp_tool_invocations_total")
			require.Len(t, points, 1)
			assert.Equal(t, "gmail.get_message", attrValue(points[0].Attributes, attrTool))
			assert.Equal(t, tt.wantKind, attrValue(points[0].Attributes, attrKind))
		})
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	ctx := context.Background()

	var nilMetrics *Metrics
	zero := &Metrics{}

	for _, m := range []*Metrics{nilMetrics, zero} {
		// Should not panic
		m.RecordGoogleAPIOperation(ctx, ServiceGmail, OperationGet, StatusSuccess, time.Millisecond)
		m.RecordProviderError(ctx, OperationGet, KindProviderTransport)
		m.RecordOAuthAuth(ctx, OAuthResultSuccess)
		m.RecordOAuthTokenRefresh(ctx, OAuthResultSuccess)
		m.RecordToolInvocation(ctx, "gmail.get_message", StatusSuccess, time.Millisecond)
	}
}
