package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
// Durations accept Go syntax ("5m") or a number of seconds ("300").
type FileConfig struct {
	Hash                 string  `toml:"hash"`
	Name                 string  `toml:"name"`
	Sensor               string  `toml:"sensor"`
	LogLevel             string  `toml:"loglevel"`
	LogDir               string  `toml:"log_dir"`
	Stdout               *bool   `toml:"stdout"`
	DataDir              string  `toml:"data_dir"`
	MirrorDir            string  `toml:"mirror_dir"`
	ServiceURL           string  `toml:"service_url"`
	AuthKey              string  `toml:"auth_key"`
	Gzip                 *bool   `toml:"gzip"`
	Watch                *bool   `toml:"watch"`
	MetricsAddr          string  `toml:"metrics_addr"`
	MeasurementFrequency float64 `toml:"measurement_frequency"`
	UploadInterval       string  `toml:"upload_interval"`
	RolloverInterval     string  `toml:"rollover_interval"`
	MaxBufferBytes       *int    `toml:"max_buffer_bytes"`
	SensorTimeout        string  `toml:"sensor_timeout"`
	UploadTimeout        string  `toml:"upload_timeout"`
	DrainTimeout         string  `toml:"drain_timeout"`
	MaxSensorFailures    *int    `toml:"max_sensor_failures"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.sensorship/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".sensorship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("hash", fc.Hash, &cfg.Hash)
	s.setString("name", fc.Name, &cfg.Name)
	s.setString("sensor", fc.Sensor, &cfg.Sensor)
	s.setString("loglevel", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-dir", fc.LogDir, &cfg.LogDir)
	s.setString("data-dir", fc.DataDir, &cfg.DataDir)
	s.setString("mirror-dir", fc.MirrorDir, &cfg.MirrorDir)
	s.setString("service-url", fc.ServiceURL, &cfg.ServiceURL)
	s.setString("auth-key", fc.AuthKey, &cfg.AuthKey)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)

	if err := s.setDuration("upload-interval", fc.UploadInterval, &cfg.UploadInterval); err != nil {
		return err
	}
	if err := s.setDuration("rollover-interval", fc.RolloverInterval, &cfg.RolloverInterval); err != nil {
		return err
	}
	if err := s.setDuration("sensor-timeout", fc.SensorTimeout, &cfg.SensorTimeout); err != nil {
		return err
	}
	if err := s.setDuration("upload-timeout", fc.UploadTimeout, &cfg.UploadTimeout); err != nil {
		return err
	}
	if err := s.setDuration("drain-timeout", fc.DrainTimeout, &cfg.DrainTimeout); err != nil {
		return err
	}

	s.setFloat("measurement-frequency", fc.MeasurementFrequency, &cfg.MeasurementFrequency)

	s.setInt("max-buffer-bytes", fc.MaxBufferBytes, &cfg.MaxBufferBytes)
	s.setInt("max-sensor-failures", fc.MaxSensorFailures, &cfg.MaxSensorFailures)

	s.setBool("stdout", fc.Stdout, &cfg.Stdout)
	s.setBool("gzip", fc.Gzip, &cfg.Gzip)
	s.setBool("watch", fc.Watch, &cfg.Watch)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
