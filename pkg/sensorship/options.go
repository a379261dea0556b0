package sensorship

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bicycledata/sensorship/internal/app"
	"github.com/bicycledata/sensorship/internal/domain"
	"github.com/bicycledata/sensorship/internal/ports"
)

// Re-exported types so embedders do not need the internal packages.
type (
	// Sensor is the capability sampled once per tick.
	Sensor = ports.Sensor

	// Measurement is one reading: a timestamp plus sensor fields.
	Measurement = domain.Measurement

	// Logger is the interface for structured logging.
	Logger = ports.Logger

	// LogField represents a structured log field.
	LogField = ports.Field

	// HTTPClient is the interface for making HTTP requests.
	// *http.Client satisfies this interface.
	HTTPClient = ports.HTTPClient

	// State is the lifecycle state of an agent.
	State = app.State

	// StorageError reports a local disk failure.
	StorageError = domain.StorageError

	// UploadError reports a failed delivery attempt.
	UploadError = domain.UploadError
)

// Lifecycle states.
const (
	StateStopped  = app.StateStopped
	StateStarting = app.StateStarting
	StateRunning  = app.StateRunning
	StateDraining = app.StateDraining
)

// Errors, checkable with errors.Is.
var (
	ErrInvalidConfig   = domain.ErrInvalidConfig
	ErrAlreadyRunning  = domain.ErrAlreadyRunning
	ErrShutdownTimeout = domain.ErrShutdownTimeout
	ErrSensorFatal     = domain.ErrSensorFatal
	ErrNoReading       = domain.ErrNoReading
)

// NewMeasurement creates a measurement taken at t.
var NewMeasurement = domain.NewMeasurement

// EventHandler receives lifecycle transitions. It is called synchronously
// and should return quickly.
type EventHandler interface {
	OnStateChange(previous, current State, reason string)
}

// Option configures optional behavior of an Agent.
type Option func(*options)

// options holds the optional configuration for an Agent.
type options struct {
	httpClient   ports.HTTPClient
	logger       ports.Logger
	eventHandler EventHandler
	sensor       ports.Sensor
	registry     *prometheus.Registry
}

// WithHTTPClient sets a custom HTTP client for uploads.
// If not provided, a client with the configured upload timeout is used.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for lifecycle events.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithSensor samples s instead of the built-in sensor named by Config.Sensor.
func WithSensor(s Sensor) Option {
	return func(o *options) {
		o.sensor = s
	}
}

// WithMetricsRegistry registers the agent's Prometheus collectors on reg.
// The agent's MetricsHandler then serves them.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}
