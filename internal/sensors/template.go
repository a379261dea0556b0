package sensors

import (
	"context"
	"math/rand"
	"strconv"
	"sync"

	"github.com/bicycledata/sensorship/internal/clock"
	"github.com/bicycledata/sensorship/internal/domain"
)

// Template is a simulated push button. Each reading is 1 when the button is
// pressed and 0 otherwise; presses happen at random. It is the starting
// point for new sensor types and is handy for exercising a deployment
// without hardware.
type Template struct {
	clk clock.Clock

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewTemplate creates a template sensor. A zero seed picks a random one.
func NewTemplate(clk clock.Clock, seed int64) *Template {
	if seed == 0 {
		seed = rand.Int63()
	}
	return &Template{clk: clk, rnd: rand.New(rand.NewSource(seed))}
}

// Header implements ports.Sensor.
func (*Template) Header() []string { return []string{"timestamp", "button"} }

// Measure implements ports.Sensor.
func (s *Template) Measure(ctx context.Context) (domain.Measurement, error) {
	if err := ctx.Err(); err != nil {
		return domain.Measurement{}, err
	}
	s.mu.Lock()
	pressed := s.rnd.Intn(3) == 0
	s.mu.Unlock()

	v := 0
	if pressed {
		v = 1
	}
	return domain.NewMeasurement(s.clk.Now(), strconv.Itoa(v)), nil
}
