// Package sensors provides the software sensors shipped with the agent and
// selects one by name at startup. Hardware drivers implement ports.Sensor
// in their own packages and are registered the same way.
package sensors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bicycledata/sensorship/internal/clock"
	"github.com/bicycledata/sensorship/internal/domain"
	"github.com/bicycledata/sensorship/internal/ports"
)

// Factory builds a sensor.
type Factory func(clk clock.Clock) (ports.Sensor, error)

var registry = map[string]Factory{
	"template": func(clk clock.Clock) (ports.Sensor, error) { return NewTemplate(clk, 0), nil },
	"session":  func(clk clock.Clock) (ports.Sensor, error) { return NewSession(clk), nil },
}

// New returns the sensor registered under kind.
func New(kind string, clk clock.Clock) (ports.Sensor, error) {
	f, ok := registry[strings.ToLower(kind)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown sensor %q (available: %s)",
			domain.ErrInvalidConfig, kind, strings.Join(Kinds(), ", "))
	}
	return f(clk)
}

// Kinds lists the registered sensor names.
func Kinds() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
