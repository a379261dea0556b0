package cliconfig

import (
	"fmt"
	"time"

	pflag "github.com/spf13/pflag"
)

// secondsValue is a duration flag that also accepts a bare number of
// seconds, so "--upload-interval 300" keeps working.
type secondsValue time.Duration

func (d *secondsValue) Set(s string) error {
	v, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = secondsValue(v)
	return nil
}

func (d *secondsValue) String() string { return time.Duration(*d).String() }

func (d *secondsValue) Type() string { return "duration" }

func durationVar(fs *pflag.FlagSet, p *time.Duration, name string, usage string) {
	fs.Var((*secondsValue)(p), name, usage)
}

// BindFlags registers the command-line flags on fs. Defaults are taken from
// the current values in cfg.
func BindFlags(fs *pflag.FlagSet, cfg *Config, cfgPath *string) {
	fs.StringVar(cfgPath, "config", "", "path to config file (default: $HOME/.sensorship/config.toml)")

	fs.StringVar(&cfg.Hash, "hash", cfg.Hash, "device hash identifying this unit to the server (required)")
	fs.StringVar(&cfg.Name, "name", cfg.Name, "sensor name used in buffer and log file names (required)")
	fs.StringVar(&cfg.Sensor, "sensor", cfg.Sensor, "sensor type to sample")

	fs.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "log level (DEBUG, INFO, WARNING, ERROR)")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "directory for the log file")
	fs.BoolVar(&cfg.Stdout, "stdout", cfg.Stdout, "also log to the terminal")

	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory holding pending/ and uploaded/")
	fs.StringVar(&cfg.MirrorDir, "mirror-dir", cfg.MirrorDir, "removable storage root for a backup copy of every buffer (optional)")

	fs.StringVar(&cfg.ServiceURL, "service-url", cfg.ServiceURL, fmt.Sprintf("upload endpoint (defaults to %s)", DefaultServiceURL))
	fs.StringVar(&cfg.AuthKey, "auth-key", cfg.AuthKey, "bearer token sent with uploads (optional)")
	fs.BoolVar(&cfg.Gzip, "gzip", cfg.Gzip, "gzip upload request bodies")
	fs.BoolVar(&cfg.Watch, "watch", cfg.Watch, "upload as soon as a buffer is sealed")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "listen address for Prometheus metrics, e.g. :9108 (disabled when empty)")

	fs.Float64Var(&cfg.MeasurementFrequency, "measurement-frequency", cfg.MeasurementFrequency, "readings per second")
	durationVar(fs, &cfg.UploadInterval, "upload-interval", "interval between scheduled upload passes (seconds or duration)")
	durationVar(fs, &cfg.RolloverInterval, "rollover-interval", "maximum buffer age before it is sealed (defaults to upload-interval)")
	fs.IntVar(&cfg.MaxBufferBytes, "max-buffer-bytes", cfg.MaxBufferBytes, "maximum buffer size before it is sealed (0 = unlimited)")
	durationVar(fs, &cfg.SensorTimeout, "sensor-timeout", "timeout for a single sensor reading")
	durationVar(fs, &cfg.UploadTimeout, "upload-timeout", "timeout for a single upload")
	durationVar(fs, &cfg.DrainTimeout, "drain-timeout", "time allowed for shutdown and the final upload pass")
	fs.IntVar(&cfg.MaxSensorFailures, "max-sensor-failures", cfg.MaxSensorFailures, "consecutive failed readings before giving up (0 = never)")
}

// ChangedFlags returns the names of the flags set on the command line.
func ChangedFlags(fs *pflag.FlagSet) map[string]bool {
	changed := map[string]bool{}
	fs.Visit(func(f *pflag.Flag) { changed[f.Name] = true })
	return changed
}

// Resolve layers the config file and the environment under the flags
// already parsed into cfg, then validates the result. Precedence is
// flags > environment > file > defaults. An empty cfgPath uses
// DefaultConfigPath; a missing default file is not an error.
func Resolve(cfg *Config, cfgPath string, changed map[string]bool) error {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = DefaultConfigPath()
	}

	if cfgFile != "" && (cfgPath != "" || FileExists(cfgFile)) {
		fc, err := LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := ApplyFileConfig(cfg, fc, changed); err != nil {
			return err
		}
	}

	// These override file config but are overridden by flags (checked via changed map)
	if err := ApplyEnvConfig(cfg, changed); err != nil {
		return fmt.Errorf("environment: %w", err)
	}

	return cfg.Validate()
}
