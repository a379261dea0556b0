package ports

import (
	"context"

	"github.com/bicycledata/sensorship/internal/domain"
)

// Sensor is the capability the sampler drives once per tick.
// Each concrete sensor type implements it; the type is selected at startup.
// Measure is never called concurrently: while a timed-out reading is still
// running, later ticks are skipped.
type Sensor interface {
	// Header returns the column names of the sensor fields. A leading
	// "timestamp" column is added when missing.
	Header() []string

	// Measure takes one reading. It returns domain.ErrNoReading when there is
	// nothing to record this tick, and an error wrapping domain.ErrSensorFatal
	// when no further readings are possible. The context carries the read
	// timeout; implementations should honor it.
	Measure(ctx context.Context) (domain.Measurement, error)
}
