package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bicycledata/sensorship/internal/clock"
	"github.com/bicycledata/sensorship/internal/domain"
)

func newTestSampler(t *testing.T, cfg SamplerConfig, sensor *seqSensor, dir string) (*Sampler, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(t0)
	sensor.clk = clk
	store := newTestStore(t, dir)
	return NewSampler(cfg, sensor, store, clk, mockLogger{}, nil), clk
}

// step advances the clock to t0+offset and runs one tick.
func step(t *testing.T, s *Sampler, clk *clock.Manual, offset time.Duration) error {
	t.Helper()
	now := t0.Add(offset)
	clk.Set(now)
	return s.Step(context.Background(), now)
}

func TestSamplerConfig_Period(t *testing.T) {
	tests := []struct {
		freq float64
		want time.Duration
	}{
		{1, time.Second},
		{4, 250 * time.Millisecond},
		{0.5, 2 * time.Second},
		{0, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SamplerConfig{Frequency: tt.freq}.Period(), "frequency %v", tt.freq)
	}
}

func TestSampler_TimeRollover(t *testing.T) {
	dir := t.TempDir()
	s, clk := newTestSampler(t, SamplerConfig{Frequency: 1, MaxAge: 5 * time.Second}, &seqSensor{}, dir)

	for i := 0; i < 12; i++ {
		require.NoError(t, step(t, s, clk, time.Duration(i)*time.Second))
	}

	store := newTestStore(t, dir)
	sealed, err := store.Sealed()
	require.NoError(t, err)
	require.Len(t, sealed, 2)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, seqs(records(t, filepath.Join(pendingPath(dir), sealed[0]))))
	assert.Equal(t, []string{"6", "7", "8", "9", "10"}, seqs(records(t, filepath.Join(pendingPath(dir), sealed[1]))))

	active, err := store.ActiveFiles()
	require.NoError(t, err)
	require.Len(t, active, 1, "exactly one active buffer")
	assert.Equal(t, s.Active()+".active", active[0])
	assert.Equal(t, []string{"11", "12"}, seqs(records(t, filepath.Join(pendingPath(dir), active[0]))))

	assert.Less(t, sealed[0], sealed[1])
	assert.Less(t, sealed[1], s.Active())
}

func TestSampler_SizeRollover(t *testing.T) {
	dir := t.TempDir()
	// Header is 14 bytes, each record 29: rollover once 2 records are in.
	s, clk := newTestSampler(t, SamplerConfig{Frequency: 1, MaxBytes: 70}, &seqSensor{}, dir)

	for i := 0; i < 5; i++ {
		require.NoError(t, step(t, s, clk, time.Duration(i)*time.Second))
	}
	require.NoError(t, s.Close())

	sealed, err := newTestStore(t, dir).Sealed()
	require.NoError(t, err)
	var all []string
	for _, name := range sealed {
		rows := records(t, filepath.Join(pendingPath(dir), name))
		assert.LessOrEqual(t, len(rows), 2)
		all = append(all, seqs(rows)...)
	}
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, all, "no loss, no reordering across buffers")
	assert.Empty(t, s.Active())
}

func TestSampler_NoReadingIsSkipped(t *testing.T) {
	dir := t.TempDir()
	sensor := &seqSensor{errs: map[int]error{2: domain.ErrNoReading, 3: domain.ErrNoReading}}
	s, clk := newTestSampler(t, SamplerConfig{Frequency: 1, MaxSensorFailures: 1}, sensor, dir)

	for i := 0; i < 4; i++ {
		require.NoError(t, step(t, s, clk, time.Duration(i)*time.Second))
	}
	require.NoError(t, s.Close())

	sealed, err := newTestStore(t, dir).Sealed()
	require.NoError(t, err)
	require.Len(t, sealed, 1)
	assert.Equal(t, []string{"1", "4"}, seqs(records(t, filepath.Join(pendingPath(dir), sealed[0]))))
}

func TestSampler_FatalSensorStops(t *testing.T) {
	dir := t.TempDir()
	sensor := &seqSensor{errs: map[int]error{2: fmt.Errorf("%w: bus closed", domain.ErrSensorFatal)}}
	s, clk := newTestSampler(t, SamplerConfig{Frequency: 1}, sensor, dir)

	require.NoError(t, step(t, s, clk, 0))
	err := step(t, s, clk, time.Second)
	require.ErrorIs(t, err, domain.ErrSensorFatal)
	assert.True(t, domain.IsFatal(err))
}

func TestSampler_FailuresEscalate(t *testing.T) {
	dir := t.TempDir()
	flaky := errors.New("i2c nack")
	sensor := &seqSensor{errs: map[int]error{2: flaky, 4: flaky, 5: flaky, 6: flaky}}
	s, clk := newTestSampler(t, SamplerConfig{Frequency: 1, MaxSensorFailures: 3}, sensor, dir)

	// A success in between resets the count.
	for i := 0; i < 5; i++ {
		require.NoError(t, step(t, s, clk, time.Duration(i)*time.Second), "step %d", i)
	}
	err := step(t, s, clk, 5*time.Second)
	require.ErrorIs(t, err, domain.ErrSensorFatal)
	assert.ErrorContains(t, err, "3 consecutive read failures")
}

func TestSampler_ReadTimeoutCountsAsFailure(t *testing.T) {
	dir := t.TempDir()
	sensor := &seqSensor{block: make(chan struct{})}
	s, clk := newTestSampler(t, SamplerConfig{Frequency: 1, SensorTimeout: 20 * time.Millisecond, MaxSensorFailures: 2}, sensor, dir)

	require.NoError(t, step(t, s, clk, 0))
	err := step(t, s, clk, time.Second)
	require.ErrorIs(t, err, domain.ErrSensorFatal)
	assert.ErrorContains(t, err, context.DeadlineExceeded.Error())
}

func TestSampler_TimedOutReadIsNotOverlapped(t *testing.T) {
	dir := t.TempDir()
	release := make(chan struct{})
	sensor := &seqSensor{block: release, stuck: true}
	s, clk := newTestSampler(t, SamplerConfig{Frequency: 1, SensorTimeout: 20 * time.Millisecond}, sensor, dir)

	require.NoError(t, step(t, s, clk, 0))
	require.NoError(t, step(t, s, clk, time.Second))
	assert.Equal(t, 1, sensor.Reads(), "no new read while the timed-out one is outstanding")

	close(release)
	require.Eventually(t, func() bool { return !s.reading.Load() }, 5*time.Second, time.Millisecond)

	require.NoError(t, step(t, s, clk, 2*time.Second))
	assert.Equal(t, 2, sensor.Reads())
	assert.False(t, sensor.overlap.Load(), "Measure was called concurrently")
	require.NoError(t, s.Close())

	sealed, err := newTestStore(t, dir).Sealed()
	require.NoError(t, err)
	require.Len(t, sealed, 1)
	assert.Equal(t, []string{"2"}, seqs(records(t, filepath.Join(pendingPath(dir), sealed[0]))), "the late reading is dropped")
}

func TestSampler_CreateFailureIsStorageError(t *testing.T) {
	dir := t.TempDir()
	s, clk := newTestSampler(t, SamplerConfig{Frequency: 1}, &seqSensor{}, dir)
	require.NoError(t, os.RemoveAll(pendingPath(dir)))

	err := step(t, s, clk, 0)
	var se *domain.StorageError
	require.ErrorAs(t, err, &se)
	assert.True(t, domain.IsFatal(err))
}

func TestSampler_RunSealsOnCancel(t *testing.T) {
	dir := t.TempDir()
	s, clk := newTestSampler(t, SamplerConfig{Frequency: 1, MaxAge: time.Hour}, &seqSensor{}, dir)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	tk := waitTicker(t, clk, time.Second)
	for i := 1; i <= 2; i++ {
		require.True(t, tk.Tick(clk.Advance(time.Second)))
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sampler did not stop")
	}

	store := newTestStore(t, dir)
	active, err := store.ActiveFiles()
	require.NoError(t, err)
	assert.Empty(t, active)

	sealed, err := store.Sealed()
	require.NoError(t, err)
	require.Len(t, sealed, 1)
	rows := records(t, filepath.Join(pendingPath(dir), sealed[0]))
	assert.Equal(t, []string{"1", "2", "3"}, seqs(rows))
	assert.Equal(t, t0.Format(domain.TimestampLayout)+",1", rows[0], "first reading is taken before the first tick")
}
