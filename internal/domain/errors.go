package domain

import (
	"errors"
	"fmt"
)

// Lifecycle and configuration errors. These can be checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Run is called on a running coordinator.
	ErrAlreadyRunning = errors.New("sensorship: already running")

	// ErrNotRunning is returned for a transition that requires a running coordinator.
	ErrNotRunning = errors.New("sensorship: not running")

	// ErrShutdownTimeout is returned when draining does not finish in time.
	ErrShutdownTimeout = errors.New("sensorship: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("sensorship: invalid configuration")
)

// Sampling errors.
var (
	// ErrSensorFatal marks a sensor that cannot produce further readings.
	// Sensors wrap it: fmt.Errorf("%w: bus closed", domain.ErrSensorFatal).
	ErrSensorFatal = errors.New("sensor fatal")

	// ErrNoReading is returned by event-driven sensors that have nothing to
	// report for the current tick. The sampler skips the tick silently.
	ErrNoReading = errors.New("no reading")

	// ErrBufferSealed is returned when appending to a buffer after Seal.
	ErrBufferSealed = errors.New("buffer sealed")
)

// StorageError reports a local disk failure (full disk, permission denied).
// It is fatal for the sampler and makes the coordinator drain and exit.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// UploadError reports a failed delivery attempt. It never terminates the
// process; the buffer stays sealed and is retried on the next pass.
type UploadError struct {
	Buffer     string
	StatusCode int
	Body       string
	Err        error
}

func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload %s: server returned %d: %s", e.Buffer, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("upload %s: %v", e.Buffer, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// MirrorError reports a failure writing the removable-storage copy.
type MirrorError struct {
	Path string
	Err  error
}

func (e *MirrorError) Error() string {
	return fmt.Sprintf("mirror %s: %v", e.Path, e.Err)
}

func (e *MirrorError) Unwrap() error { return e.Err }

// IsFatal reports whether err must stop sampling and drain the process.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var se *StorageError
	return errors.Is(err, ErrSensorFatal) || errors.As(err, &se)
}
