package telemetry

import (
	"fmt"
	"time"
)

// Config wires up the three telemetry concerns for a process embedding
// the engine: structured logging, Prometheus metrics, and trace spans.
type Config struct {
	// ServiceName identifies the embedding process in logs and traces.
	ServiceName string

	// ServiceVersion is the build version of the embedding process.
	ServiceVersion string

	// Environment labels telemetry output (development, production).
	Environment string

	Logging LoggingConfig
	Tracing TracingConfig
	Metrics MetricsConfig

	// ResourceAttributes are attached to the trace resource verbatim.
	ResourceAttributes map[string]string
}

// LoggingConfig controls the zerolog logger.
type LoggingConfig struct {
	// Level is the minimum level: trace, debug, info, warn, error, fatal.
	Level string

	// Format is "console" or "json".
	Format string

	// Output is "stdout", "stderr", or a file path.
	Output string

	// EnableCaller adds file:line to each entry.
	EnableCaller bool

	// EnableSampling rate-limits repeated entries: SamplingInitial
	// messages pass per second, then every SamplingThereafter-th.
	EnableSampling     bool
	SamplingInitial    int
	SamplingThereafter int

	// TimeFormat selects the timestamp encoding (unix, unixms,
	// unixmicro, rfc3339).
	TimeFormat string
}

// TracingConfig controls span creation and export.
type TracingConfig struct {
	Enabled bool

	// Exporter is "stdout" or "none". With "none" spans are sampled
	// but never exported, which keeps span attributes testable.
	Exporter string

	// SamplingRate is the fraction of traces kept, 0 to 1.
	SamplingRate float64

	MaxExportBatchSize int
	ExportTimeout      time.Duration
}

// MetricsConfig controls the Prometheus registry and optional HTTP
// exposition endpoint.
type MetricsConfig struct {
	Enabled bool

	// ListenAddress and Path configure StartMetricsServer. The
	// registry works without the server; one-shot commands record
	// metrics they never serve.
	ListenAddress string
	Path          string

	// Namespace prefixes every metric name.
	Namespace string

	// DefaultHistogramBuckets are latency buckets in seconds.
	DefaultHistogramBuckets []float64
}

// DefaultConfig returns the baseline configuration: console logs,
// stdout traces, metrics on :9090.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "formgraph",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:              "info",
			Format:             "console",
			Output:             "stdout",
			EnableCaller:       true,
			SamplingInitial:    100,
			SamplingThereafter: 100,
			TimeFormat:         "rfc3339",
		},
		Tracing: TracingConfig{
			Enabled:            true,
			Exporter:           "stdout",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9090",
			Path:          "/metrics",
			Namespace:     "formgraph",
			DefaultHistogramBuckets: []float64{
				0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
			},
		},
		ResourceAttributes: make(map[string]string),
	}
}

// ProductionConfig tunes the defaults for long-running deployments:
// json logs with sampling, no trace export, 10% trace sampling.
func ProductionConfig() *Config {
	cfg := DefaultConfig()
	cfg.Environment = "production"
	cfg.Logging.Format = "json"
	cfg.Logging.EnableSampling = true
	cfg.Logging.TimeFormat = "unix"
	cfg.Tracing.Exporter = "none"
	cfg.Tracing.SamplingRate = 0.1
	return cfg
}

// DevelopmentConfig tunes the defaults for local work: debug level,
// every trace exported to stdout.
func DevelopmentConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Tracing.SamplingRate = 1.0
	return cfg
}

var (
	validLogLevels  = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true}
	validExporters  = map[string]bool{"stdout": true, "none": true}
	validLogFormats = map[string]bool{"console": true, "json": true}
)

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service version is required")
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be 'console' or 'json')", c.Logging.Format)
	}
	if c.Tracing.Enabled && !validExporters[c.Tracing.Exporter] {
		return fmt.Errorf("invalid trace exporter: %s", c.Tracing.Exporter)
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0 and 1, got: %f", c.Tracing.SamplingRate)
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddress == "" {
		return fmt.Errorf("metrics listen address is required when metrics are enabled")
	}
	return nil
}
