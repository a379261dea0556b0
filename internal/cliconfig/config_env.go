package cliconfig

import "os"

// EnvPrefix prefixes every environment variable read by ApplyEnvConfig.
const EnvPrefix = "SENSORSHIP_"

func getenv(key string) string { return os.Getenv(EnvPrefix + key) }

// ApplyEnvConfig applies configuration from environment variables (SENSORSHIP_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("hash", getenv("HASH"), &cfg.Hash)
	s.setString("name", getenv("NAME"), &cfg.Name)
	s.setString("sensor", getenv("SENSOR"), &cfg.Sensor)
	s.setString("loglevel", getenv("LOGLEVEL"), &cfg.LogLevel)
	s.setString("log-dir", getenv("LOG_DIR"), &cfg.LogDir)
	s.setString("data-dir", getenv("DATA_DIR"), &cfg.DataDir)
	s.setString("mirror-dir", getenv("MIRROR_DIR"), &cfg.MirrorDir)
	s.setString("service-url", getenv("SERVICE_URL"), &cfg.ServiceURL)
	s.setString("auth-key", getenv("AUTH_KEY"), &cfg.AuthKey)
	s.setString("metrics-addr", getenv("METRICS_ADDR"), &cfg.MetricsAddr)

	if err := s.setDuration("upload-interval", getenv("UPLOAD_INTERVAL"), &cfg.UploadInterval); err != nil {
		return err
	}
	if err := s.setDuration("rollover-interval", getenv("ROLLOVER_INTERVAL"), &cfg.RolloverInterval); err != nil {
		return err
	}
	if err := s.setDuration("sensor-timeout", getenv("SENSOR_TIMEOUT"), &cfg.SensorTimeout); err != nil {
		return err
	}
	if err := s.setDuration("upload-timeout", getenv("UPLOAD_TIMEOUT"), &cfg.UploadTimeout); err != nil {
		return err
	}
	if err := s.setDuration("drain-timeout", getenv("DRAIN_TIMEOUT"), &cfg.DrainTimeout); err != nil {
		return err
	}

	if err := s.setFloatFromString("measurement-frequency", getenv("MEASUREMENT_FREQUENCY"), &cfg.MeasurementFrequency); err != nil {
		return err
	}

	if err := s.setIntFromString("max-buffer-bytes", getenv("MAX_BUFFER_BYTES"), &cfg.MaxBufferBytes); err != nil {
		return err
	}
	if err := s.setIntFromString("max-sensor-failures", getenv("MAX_SENSOR_FAILURES"), &cfg.MaxSensorFailures); err != nil {
		return err
	}

	s.setBoolFromString("stdout", getenv("STDOUT"), &cfg.Stdout)
	s.setBoolFromString("gzip", getenv("GZIP"), &cfg.Gzip)
	s.setBoolFromString("watch", getenv("WATCH"), &cfg.Watch)

	return nil
}
