package cliconfig

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	httpAdapter "github.com/bicycledata/sensorship/internal/adapters/http"
	logAdapter "github.com/bicycledata/sensorship/internal/adapters/log"
	"github.com/bicycledata/sensorship/internal/domain"
)

// DefaultServiceURL is the default endpoint receiving sealed buffers.
const DefaultServiceURL = httpAdapter.DefaultServiceURL

// Config holds CLI configuration for sensorship.
type Config struct {
	Hash   string
	Name   string
	Sensor string

	LogLevel string
	LogDir   string
	Stdout   bool

	DataDir   string
	MirrorDir string

	ServiceURL  string
	AuthKey     string
	Gzip        bool
	Watch       bool
	MetricsAddr string

	MeasurementFrequency float64
	UploadInterval       time.Duration
	RolloverInterval     time.Duration
	MaxBufferBytes       int
	SensorTimeout        time.Duration
	UploadTimeout        time.Duration
	DrainTimeout         time.Duration
	MaxSensorFailures    int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Sensor:               "template",
		LogLevel:             "INFO",
		LogDir:               "log",
		DataDir:              ".",
		ServiceURL:           DefaultServiceURL,
		Watch:                true,
		MeasurementFrequency: 1.0,
		UploadInterval:       300 * time.Second,
		RolloverInterval:     0, // Derived from UploadInterval during Validate
		SensorTimeout:        5 * time.Second,
		UploadTimeout:        10 * time.Second,
		DrainTimeout:         30 * time.Second,
		MaxSensorFailures:    10,
	}
}

// Validate checks the configuration for errors and sets derived defaults.
// Every returned error wraps domain.ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Hash == "" {
		return invalid("hash is required")
	}
	if c.Name == "" {
		return invalid("name is required")
	}
	if c.Sensor == "" {
		c.Sensor = "template"
	}

	if _, err := logAdapter.ParseLevel(c.LogLevel); err != nil {
		return invalid("loglevel: %v", err)
	}

	if c.DataDir == "" {
		c.DataDir = "."
	}

	if c.ServiceURL == "" {
		c.ServiceURL = DefaultServiceURL
	}
	c.ServiceURL = strings.TrimRight(c.ServiceURL, "/")

	if c.MeasurementFrequency <= 0 {
		return invalid("measurement frequency must be positive")
	}
	if c.UploadInterval <= 0 {
		return invalid("upload interval must be positive")
	}
	if c.RolloverInterval < 0 {
		return invalid("rollover interval must not be negative")
	}
	if c.RolloverInterval == 0 {
		c.RolloverInterval = c.UploadInterval
	}
	if c.MaxBufferBytes < 0 {
		return invalid("max buffer bytes must not be negative")
	}
	if c.SensorTimeout < 0 || c.UploadTimeout < 0 {
		return invalid("timeouts must not be negative")
	}
	if c.DrainTimeout <= 0 {
		return invalid("drain timeout must be positive")
	}
	if c.MaxSensorFailures < 0 {
		return invalid("max sensor failures must not be negative")
	}

	return nil
}

// Masked returns a copy safe to log.
func (c Config) Masked() Config {
	if len(c.AuthKey) > 0 {
		c.AuthKey = "*****"
	}
	return c
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{domain.ErrInvalidConfig}, args...)...)
}

// ParseDuration parses a Go duration ("90s", "5m") or a bare number of
// seconds ("300", "0.5").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value from a pointer if not nil and flag not changed.
// Zero is a valid value.
func (s *configSetter) setInt(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setFloat sets a float64 value if positive and flag not changed.
func (s *configSetter) setFloat(flag string, value float64, dst *float64) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Zero is a valid value; negative values are left to Validate.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = i
	return nil
}

// setFloatFromString parses a string to float64 and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setFloatFromString(flag, value string, dst *float64) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if f <= 0 {
		return nil
	}
	*dst = f
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
