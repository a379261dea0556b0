package sensors

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/bicycledata/sensorship/internal/clock"
	"github.com/bicycledata/sensorship/internal/domain"
)

// Session marks the start of a ride: it records the process start time once
// and has nothing to report afterwards.
type Session struct {
	start time.Time

	mu   sync.Mutex
	done bool
}

// NewSession creates a session sensor started now.
func NewSession(clk clock.Clock) *Session {
	return &Session{start: clk.Now()}
}

// Header implements ports.Sensor.
func (*Session) Header() []string { return []string{"timestamp", "unix_timestamp"} }

// Measure implements ports.Sensor.
func (s *Session) Measure(context.Context) (domain.Measurement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return domain.Measurement{}, domain.ErrNoReading
	}
	s.done = true
	unix := float64(s.start.UnixMicro()) / 1e6
	return domain.NewMeasurement(s.start, strconv.FormatFloat(unix, 'f', 6, 64)), nil
}
