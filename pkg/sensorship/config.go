package sensorship

import (
	"fmt"
	"time"

	httpAdapter "github.com/bicycledata/sensorship/internal/adapters/http"
	"github.com/bicycledata/sensorship/internal/app"
	"github.com/bicycledata/sensorship/internal/domain"
)

// DefaultServiceURL is the collection endpoint used when none is configured.
const DefaultServiceURL = httpAdapter.DefaultServiceURL

// Config holds the agent settings.
type Config struct {
	// Hash identifies the device to the server. Required.
	Hash string

	// Name is the sensor name reported to the server and used in buffer
	// file names. Required.
	Name string

	// Sensor selects a built-in sensor type when WithSensor is not used.
	Sensor string

	// DataDir holds the pending/ and uploaded/ areas.
	DataDir string

	// MirrorDir, when set, receives a copy of every buffer under
	// <MirrorDir>/<Name>/ while it exists (e.g. a USB stick).
	MirrorDir string

	ServiceURL string
	AuthKey    string
	Gzip       bool

	// Watch uploads a buffer as soon as it is sealed instead of waiting
	// for the next scheduled pass.
	Watch bool

	// MeasurementFrequency is the number of readings per second.
	MeasurementFrequency float64

	// UploadInterval is the period of scheduled upload passes.
	UploadInterval time.Duration

	// RolloverInterval is the maximum age of a buffer; zero uses
	// UploadInterval.
	RolloverInterval time.Duration

	// MaxBufferBytes is the maximum size of a buffer; zero is unlimited.
	MaxBufferBytes int64

	SensorTimeout time.Duration
	UploadTimeout time.Duration
	DrainTimeout  time.Duration

	// MaxSensorFailures is the number of consecutive failed readings
	// after which the agent stops; zero never stops.
	MaxSensorFailures int
}

// DefaultConfig returns a Config with default values. Hash and Name must
// still be set.
func DefaultConfig() Config {
	return Config{
		Sensor:               "template",
		DataDir:              ".",
		ServiceURL:           DefaultServiceURL,
		Watch:                true,
		MeasurementFrequency: 1.0,
		UploadInterval:       app.DefaultUploadInterval,
		SensorTimeout:        app.DefaultSensorTimeout,
		UploadTimeout:        app.DefaultUploadTimeout,
		DrainTimeout:         app.ShutdownTimeout,
		MaxSensorFailures:    app.DefaultMaxSensorFailures,
	}
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	if c.Sensor == "" {
		c.Sensor = "template"
	}
	if c.DataDir == "" {
		c.DataDir = "."
	}
	if c.ServiceURL == "" {
		c.ServiceURL = DefaultServiceURL
	}
	if c.MeasurementFrequency == 0 {
		c.MeasurementFrequency = 1.0
	}
	if c.UploadInterval == 0 {
		c.UploadInterval = app.DefaultUploadInterval
	}
	if c.RolloverInterval == 0 {
		c.RolloverInterval = c.UploadInterval
	}
	if c.SensorTimeout == 0 {
		c.SensorTimeout = app.DefaultSensorTimeout
	}
	if c.UploadTimeout == 0 {
		c.UploadTimeout = app.DefaultUploadTimeout
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = app.ShutdownTimeout
	}
}

// Validate checks the configuration. Errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Hash == "":
		return fmt.Errorf("%w: hash is required", domain.ErrInvalidConfig)
	case c.Name == "":
		return fmt.Errorf("%w: name is required", domain.ErrInvalidConfig)
	case c.MeasurementFrequency <= 0:
		return fmt.Errorf("%w: measurement frequency must be positive", domain.ErrInvalidConfig)
	case c.UploadInterval <= 0:
		return fmt.Errorf("%w: upload interval must be positive", domain.ErrInvalidConfig)
	case c.RolloverInterval < 0 || c.MaxBufferBytes < 0:
		return fmt.Errorf("%w: rollover limits must not be negative", domain.ErrInvalidConfig)
	case c.SensorTimeout < 0 || c.UploadTimeout < 0:
		return fmt.Errorf("%w: timeouts must not be negative", domain.ErrInvalidConfig)
	case c.MaxSensorFailures < 0:
		return fmt.Errorf("%w: max sensor failures must not be negative", domain.ErrInvalidConfig)
	case c.DrainTimeout <= 0:
		return fmt.Errorf("%w: drain timeout must be positive", domain.ErrInvalidConfig)
	}
	return nil
}
