package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bicycledata/sensorship/internal/clock"
	"github.com/bicycledata/sensorship/internal/domain"
	"github.com/bicycledata/sensorship/internal/ports"
)

// Default sampler configuration values.
const (
	DefaultSensorTimeout     = 5 * time.Second
	DefaultMaxSensorFailures = 10
)

// SamplerConfig holds the acquisition settings.
type SamplerConfig struct {
	// Frequency is the number of readings per second.
	Frequency float64

	// MaxAge seals the active buffer once it is this old. Zero disables
	// time-based rollover.
	MaxAge time.Duration

	// MaxBytes seals the active buffer once it reaches this size. Zero
	// means unlimited.
	MaxBytes int64

	// SensorTimeout bounds a single reading. Zero means no bound.
	SensorTimeout time.Duration

	// MaxSensorFailures is the number of consecutive failed readings after
	// which the sensor is treated as dead. Zero disables escalation.
	MaxSensorFailures int
}

// Period returns the interval between readings.
func (c SamplerConfig) Period() time.Duration {
	if c.Frequency <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / c.Frequency)
}

// Sampler owns the single active buffer. It takes one reading per tick,
// appends it, and rolls the buffer over when it grows too old or too big.
type Sampler struct {
	cfg     SamplerConfig
	sensor  ports.Sensor
	store   ports.BufferStore
	clock   clock.Clock
	logger  ports.Logger
	metrics ports.Metrics
	header  []string

	active   ports.ActiveBuffer
	failures int

	// reading is set while a Measure call is outstanding, including one
	// abandoned after its timeout.
	reading atomic.Bool
}

// NewSampler creates a sampler reading sensor into buffers created by store.
func NewSampler(cfg SamplerConfig, sensor ports.Sensor, store ports.BufferStore, clk clock.Clock, logger ports.Logger, metrics ports.Metrics) *Sampler {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Sampler{
		cfg:     cfg,
		sensor:  sensor,
		store:   store,
		clock:   clk,
		logger:  logger,
		metrics: metrics,
		header:  domain.HeaderRow(sensor.Header()),
	}
}

// Run samples until ctx is canceled or a fatal error occurs. The first
// reading is taken immediately. On return the active buffer is sealed.
// Run returns nil after cancellation and the fatal error otherwise.
func (s *Sampler) Run(ctx context.Context) error {
	if err := s.Step(ctx, s.clock.Now()); err != nil {
		return s.stop(err)
	}

	ticker := s.clock.NewTicker(s.cfg.Period())
	defer ticker.Stop()

	s.logger.Info("sampler started",
		ports.Duration("period", s.cfg.Period()),
		ports.Duration("max_age", s.cfg.MaxAge),
		ports.Int64("max_bytes", s.cfg.MaxBytes),
	)

	for {
		select {
		case <-ctx.Done():
			return s.stop(nil)
		case now := <-ticker.C():
			if ctx.Err() != nil {
				return s.stop(nil)
			}
			if err := s.Step(ctx, now); err != nil {
				return s.stop(err)
			}
		}
	}
}

// Step performs one tick at time now: open or roll the active buffer over as
// needed, take a reading and append it. The returned error is fatal.
func (s *Sampler) Step(ctx context.Context, now time.Time) error {
	if s.active == nil {
		if err := s.open(now); err != nil {
			return err
		}
	} else if s.rolloverDue(now) {
		if err := s.seal(); err != nil {
			return err
		}
		if err := s.open(now); err != nil {
			return err
		}
	}

	m, err := s.read(ctx)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNoReading):
		return nil
	case errors.Is(err, domain.ErrSensorFatal):
		s.metrics.SensorFailed(true)
		return err
	default:
		s.failures++
		s.metrics.SensorFailed(false)
		s.logger.Warn("sensor read failed",
			ports.Err(err),
			ports.Int("consecutive_failures", s.failures),
		)
		if s.cfg.MaxSensorFailures > 0 && s.failures >= s.cfg.MaxSensorFailures {
			return fmt.Errorf("%w: %d consecutive read failures: %v", domain.ErrSensorFatal, s.failures, err)
		}
		return nil
	}

	if err := s.active.Append(m); err != nil {
		return err
	}
	s.failures = 0
	s.metrics.MeasurementRecorded()
	return nil
}

// Active returns the name of the buffer receiving appends, or "".
func (s *Sampler) Active() string {
	if s.active == nil {
		return ""
	}
	return s.active.Name()
}

// Close seals the active buffer, if any.
func (s *Sampler) Close() error {
	return s.stop(nil)
}

func (s *Sampler) rolloverDue(now time.Time) bool {
	if s.cfg.MaxAge > 0 && now.Sub(s.active.CreatedAt()) >= s.cfg.MaxAge {
		return true
	}
	return s.cfg.MaxBytes > 0 && s.active.Size() >= s.cfg.MaxBytes
}

// errReadOutstanding is reported for a tick skipped because a timed-out
// reading has not returned yet. Sensors are never called concurrently.
var errReadOutstanding = fmt.Errorf("sensor read: previous read still outstanding: %w", context.DeadlineExceeded)

// read takes one reading bounded by the sensor timeout. The reading is not
// interrupted by ctx cancellation.
func (s *Sampler) read(ctx context.Context) (domain.Measurement, error) {
	rctx := context.WithoutCancel(ctx)
	if s.cfg.SensorTimeout <= 0 {
		return s.sensor.Measure(rctx)
	}

	if !s.reading.CompareAndSwap(false, true) {
		return domain.Measurement{}, errReadOutstanding
	}

	rctx, cancel := context.WithTimeout(rctx, s.cfg.SensorTimeout)
	defer cancel()

	type result struct {
		m   domain.Measurement
		err error
	}
	// Buffered: a reading that arrives after the timeout is dropped.
	ch := make(chan result, 1)
	go func() {
		defer s.reading.Store(false)
		m, err := s.sensor.Measure(rctx)
		ch <- result{m, err}
	}()

	select {
	case r := <-ch:
		return r.m, r.err
	case <-rctx.Done():
		return domain.Measurement{}, fmt.Errorf("sensor read: %w", rctx.Err())
	}
}

func (s *Sampler) open(now time.Time) error {
	buf, err := s.store.Create(s.header, now)
	if err != nil {
		return err
	}
	s.active = buf
	s.logger.Info("buffer opened", ports.String("buffer", buf.Name()))
	return nil
}

func (s *Sampler) seal() error {
	buf := s.active
	if err := buf.Seal(); err != nil {
		return err
	}
	s.active = nil
	s.metrics.BufferSealed(buf.Records(), buf.Size())
	s.logger.Info("buffer sealed",
		ports.String("buffer", buf.Name()),
		ports.Int("records", buf.Records()),
		ports.Int64("bytes", buf.Size()),
	)
	return nil
}

// stop seals the active buffer and returns cause, or the seal error when
// cause is nil.
func (s *Sampler) stop(cause error) error {
	if s.active == nil {
		return cause
	}
	if err := s.seal(); err != nil {
		s.logger.Error("failed to seal buffer on stop",
			ports.String("buffer", s.active.Name()),
			ports.Err(err),
		)
		if cause == nil {
			cause = err
		}
	}
	return cause
}
