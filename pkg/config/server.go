package config

// ServerConfig configures the HTTP/WebSocket server.
type ServerConfig struct {
	Host string `yaml:"host,omitempty" json:"host,omitempty"`
	Port int    `yaml:"port,omitempty" json:"port,omitempty"`

	// EnableMetrics exposes /metrics with prometheus counters.
	EnableMetrics bool `yaml:"enable_metrics,omitempty" json:"enable_metrics,omitempty"`

	// EnableTracing bootstraps the OTLP/stdout tracer.
	EnableTracing bool `yaml:"enable_tracing,omitempty" json:"enable_tracing,omitempty"`

	// TracingEndpoint is the OTLP gRPC collector address; empty means the
	// stdout exporter.
	TracingEndpoint string `yaml:"tracing_endpoint,omitempty" json:"tracing_endpoint,omitempty"`

	// ShutdownTimeout in seconds for graceful shutdown.
	ShutdownTimeout int `yaml:"shutdown_timeout,omitempty" json:"shutdown_timeout,omitempty"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = envInt("PORT", 8080)
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 15
	}
	if !c.EnableMetrics {
		c.EnableMetrics = true
	}
}
