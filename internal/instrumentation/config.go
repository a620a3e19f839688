package instrumentation

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Environment variables read by DefaultConfig.
const (
	EnvServiceName        = "OTEL_SERVICE_NAME"
	EnvServiceInstanceID  = "OTEL_SERVICE_INSTANCE_ID"
	EnvEnabled            = "INSTRUMENTATION_ENABLED"
	EnvMetricsExporter    = "METRICS_EXPORTER"
	EnvTracingExporter    = "TRACING_EXPORTER"
	EnvOTLPEndpoint       = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPInsecure       = "OTEL_EXPORTER_OTLP_INSECURE"
	EnvTraceSamplingRate  = "OTEL_TRACES_SAMPLER_ARG"
	EnvDetailedLabels     = "METRICS_DETAILED_LABELS"
	EnvAuditEnabled       = "AUDIT_LOGGING_ENABLED"
	EnvAuditMessageIDs    = "AUDIT_LOGGING_INCLUDE_MESSAGE_IDS"
	EnvMetricExportPeriod = "METRICS_EXPORT_INTERVAL"
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// ServiceName is the name of the service (default: gmail-mcp)
	ServiceName string

	// ServiceVersion is the version of the service
	ServiceVersion string

	// ServiceInstanceID is the unique instance identifier (default: hostname)
	ServiceInstanceID string

	// Enabled turns metrics and tracing on. When false every recorder is a
	// no-op and the metrics listener is not started.
	Enabled bool

	// MetricsExporter is one of prometheus, otlp or stdout.
	MetricsExporter string

	// TracingExporter is one of otlp, stdout or none.
	TracingExporter string

	// OTLPEndpoint is the collector host:port, without scheme.
	OTLPEndpoint string

	// OTLPInsecure sends OTLP over plain HTTP. Spans carry tool names and
	// error kinds, so only use it against a local collector.
	OTLPInsecure bool

	// TraceSamplingRate is the parent-based ratio sampler argument, 0..1.
	TraceSamplingRate float64

	// MetricExportInterval is the push period of the otlp and stdout
	// metric exporters.
	MetricExportInterval time.Duration

	// DetailedLabels controls whether the error kind label is attached to
	// tool invocation metrics. Kinds come from a closed set, see ErrorKindLabel.
	DetailedLabels bool

	// AuditLogging configures audit logging behavior.
	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	// Enabled determines if audit logging is active (default: true)
	Enabled bool

	// IncludeMessageIDs controls whether Gmail message ids are written to
	// audit records (default: false).
	IncludeMessageIDs bool
}

// DefaultConfig returns the configuration described by the process
// environment, falling back to defaults for unset variables.
func DefaultConfig() Config {
	v := viper.New()
	v.SetDefault(EnvServiceName, "gmail-mcp")
	v.SetDefault(EnvServiceInstanceID, "")
	v.SetDefault(EnvEnabled, true)
	v.SetDefault(EnvMetricsExporter, ExporterPrometheus)
	v.SetDefault(EnvTracingExporter, ExporterNone)
	v.SetDefault(EnvOTLPEndpoint, "")
	v.SetDefault(EnvOTLPInsecure, false)
	v.SetDefault(EnvTraceSamplingRate, 0.1)
	v.SetDefault(EnvMetricExportPeriod, DefaultMetricInterval)
	v.SetDefault(EnvDetailedLabels, false)
	v.SetDefault(EnvAuditEnabled, true)
	v.SetDefault(EnvAuditMessageIDs, false)
	v.AutomaticEnv()

	return Config{
		ServiceName:          v.GetString(EnvServiceName),
		ServiceVersion:       "unknown",
		ServiceInstanceID:    v.GetString(EnvServiceInstanceID),
		Enabled:              v.GetBool(EnvEnabled),
		MetricsExporter:      v.GetString(EnvMetricsExporter),
		TracingExporter:      v.GetString(EnvTracingExporter),
		OTLPEndpoint:         v.GetString(EnvOTLPEndpoint),
		OTLPInsecure:         v.GetBool(EnvOTLPInsecure),
		TraceSamplingRate:    v.GetFloat64(EnvTraceSamplingRate),
		MetricExportInterval: v.GetDuration(EnvMetricExportPeriod),
		DetailedLabels:       v.GetBool(EnvDetailedLabels),
		AuditLogging: AuditLoggingConfig{
			Enabled:           v.GetBool(EnvAuditEnabled),
			IncludeMessageIDs: v.GetBool(EnvAuditMessageIDs),
		},
	}
}

var (
	metricsExporters = map[string]bool{ExporterPrometheus: true, ExporterOTLP: true, ExporterStdout: true}
	tracingExporters = map[string]bool{ExporterOTLP: true, ExporterStdout: true, ExporterNone: true}
)

// Validate reports the first problem with c. A disabled configuration is
// always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("%s must be between 0 and 1, got %g", EnvTraceSamplingRate, c.TraceSamplingRate)
	}
	if !metricsExporters[c.MetricsExporter] {
		return fmt.Errorf("%s %q is not one of prometheus, otlp, stdout", EnvMetricsExporter, c.MetricsExporter)
	}
	if !tracingExporters[c.TracingExporter] {
		return fmt.Errorf("%s %q is not one of otlp, stdout, none", EnvTracingExporter, c.TracingExporter)
	}
	if (c.MetricsExporter == ExporterOTLP || c.TracingExporter == ExporterOTLP) && c.OTLPEndpoint == "" {
		return fmt.Errorf("%s is required by the otlp exporter", EnvOTLPEndpoint)
	}
	if c.MetricExportInterval < 0 {
		return fmt.Errorf("%s must not be negative", EnvMetricExportPeriod)
	}
	return nil
}

// Constants for metric label values.
const (
	// Status values
	StatusSuccess = "success"
	StatusError   = "error"
	StatusUnknown = "unknown"

	// OAuth result values
	OAuthResultSuccess = "success"
	OAuthResultFailure = "failure"
	OAuthResultExpired = "expired"

	// Google service names
	ServiceGmail = "gmail"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	// DefaultMetricInterval is the default push period of the otlp and
	// stdout metric exporters.
	DefaultMetricInterval = 10 * time.Second
)
