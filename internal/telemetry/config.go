package telemetry

const (
	defaultServiceName = "dittoswap"
	defaultVersion     = "dev"
)

// Config selects where spans go. The daemon fills it from the telemetry
// section of its configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// Endpoint is the collector's OTLP gRPC address, host:port.
	Endpoint string
	Insecure bool

	// SampleRate is the fraction of root spans kept.
	SampleRate float64
}

// ProfilingConfig points the Pyroscope agent at a server.
type ProfilingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Endpoint       string

	// ProfileTypes are names accepted by ParseProfileTypes.
	ProfileTypes []string
}

// DefaultConfig has tracing off, aimed at a local plaintext collector.
func DefaultConfig() Config {
	return Config{
		ServiceName:    defaultServiceName,
		ServiceVersion: defaultVersion,
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1,
	}
}

// DefaultProfilingConfig has profiling off. Turned on it collects CPU, live
// heap and lock contention.
func DefaultProfilingConfig() ProfilingConfig {
	return ProfilingConfig{
		ServiceName:    defaultServiceName,
		ServiceVersion: defaultVersion,
		Endpoint:       "http://localhost:4040",
		ProfileTypes:   []string{"cpu", "inuse_space", "mutex_duration"},
	}
}
