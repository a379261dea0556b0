// Package log adapts zerolog to ports.Logger and configures the agent's log
// outputs: a per-sensor log file and an optional console writer.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Backups is the number of rolled log files kept next to the current one.
const Backups = 2

// DefaultMaxBytes is the size at which the log file is rolled over.
const DefaultMaxBytes = 5 << 20

// Options selects where and how much the agent logs.
type Options struct {
	// Dir is the log directory. Empty disables the log file.
	Dir string

	// Name is the log file name; ".log" is appended when missing.
	Name string

	// Level is a level name such as "debug", "INFO" or "warning".
	Level string

	// MaxBytes rolls the log file over once it would grow past this size.
	// Zero uses DefaultMaxBytes; negative disables size-based rolling.
	MaxBytes int64

	// Console also writes human-readable output to Stderr.
	Console bool

	// Stderr overrides os.Stderr for the console writer.
	Stderr io.Writer
}

// ParseLevel parses a level name case-insensitively. "warning" and
// "critical" are accepted as aliases for warn and fatal.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	case "critical":
		return zerolog.FatalLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

// Setup builds the agent logger. The returned closer flushes and closes the
// log file and must be called on exit.
func Setup(opts Options) (zerolog.Logger, io.Closer, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	var (
		writers []io.Writer
		closer  io.Closer = nopCloser{}
	)
	if opts.Dir != "" {
		f, err := openLogFile(opts.Dir, opts.Name, opts.MaxBytes)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, err
		}
		writers = append(writers, f)
		closer = f
	}
	if opts.Console {
		out := opts.Stderr
		if out == nil {
			out = os.Stderr
		}
		writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	var w io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		w = writers[0]
	default:
		w = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return logger, closer, nil
}

// openLogFile rolls an existing log over to .1 (and .1 to .2) and opens a
// fresh file, so every run starts with its own log. The file keeps rolling
// whenever it reaches maxBytes.
func openLogFile(dir, name string, maxBytes int64) (*rollingFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("log dir: %w", err)
	}
	if name == "" {
		name = "sensorship"
	}
	if !strings.HasSuffix(name, ".log") {
		name += ".log"
	}
	path := filepath.Join(dir, name)

	if _, err := os.Stat(path); err == nil {
		if err := rollBackups(path); err != nil {
			return nil, err
		}
	}

	switch {
	case maxBytes == 0:
		maxBytes = DefaultMaxBytes
	case maxBytes < 0:
		maxBytes = 0
	}
	return openRollingFile(path, maxBytes)
}

// Console returns a human-readable stderr logger for messages emitted
// before Setup has run.
func Console() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
