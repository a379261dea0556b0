package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bicycledata/sensorship/internal/clock"
	"github.com/bicycledata/sensorship/internal/domain"
)

var errUnreachable = errors.New("dial tcp: connection refused")

func newTestUploader(t *testing.T, dir string, tr *fakeTransport) (*Uploader, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(t0)
	store := newTestStore(t, dir)
	cfg := UploaderConfig{Interval: time.Minute, Timeout: time.Second}
	return NewUploader(cfg, identity, store, tr, clk, mockLogger{}, nil), clk
}

func TestUploader_PassUploadsOldestFirst(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t, dir)
	a := sealBuffer(t, store, t0, 2)
	b := sealBuffer(t, store, t0.Add(time.Minute), 3)
	c := sealBuffer(t, store, t0.Add(2*time.Minute), 1)

	tr := newFakeTransport()
	u, _ := newTestUploader(t, dir, tr)

	n, err := u.Pass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{a, b, c}, tr.Delivered())

	assert.Empty(t, listNames(t, pendingPath(dir)))
	assert.Equal(t, []string{a, b, c}, listNames(t, uploadedPath(dir)))

	// Uploaded contents are the whole file, header included.
	want, err := os.ReadFile(filepath.Join(uploadedPath(dir), b))
	require.NoError(t, err)
	assert.Equal(t, want, tr.Job(1).Contents)
}

func TestUploader_FailureStopsPass(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t, dir)
	a := sealBuffer(t, store, t0, 1)
	b := sealBuffer(t, store, t0.Add(time.Minute), 1)
	c := sealBuffer(t, store, t0.Add(2*time.Minute), 1)

	tr := newFakeTransport()
	tr.fail = func(attempt int, job domain.UploadJob) error {
		if job.Name == b {
			return &domain.UploadError{Buffer: job.Name, StatusCode: 503, Body: "busy"}
		}
		return nil
	}
	u, _ := newTestUploader(t, dir, tr)

	n, err := u.Pass(context.Background())
	assert.Equal(t, 1, n)
	var ue *domain.UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, 503, ue.StatusCode)
	assert.False(t, domain.IsFatal(err))

	assert.Equal(t, []string{a}, tr.Delivered())
	assert.Equal(t, 2, tr.Attempts(), "no attempt after the failed one")
	assert.Equal(t, []string{b, c}, listNames(t, pendingPath(dir)))
}

func TestUploader_FlakyTransportKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t, dir)
	var names []string
	for i := 0; i < 3; i++ {
		names = append(names, sealBuffer(t, store, t0.Add(time.Duration(i)*time.Minute), 2))
	}

	// Fails the first two attempts, then succeeds.
	tr := newFakeTransport()
	tr.fail = func(attempt int, _ domain.UploadJob) error {
		if attempt <= 2 {
			return errUnreachable
		}
		return nil
	}
	u, _ := newTestUploader(t, dir, tr)

	for pass := 0; pass < 2; pass++ {
		n, err := u.Pass(context.Background())
		assert.Zero(t, n)
		var ue *domain.UploadError
		require.ErrorAs(t, err, &ue, "transport errors are reported as UploadError")
		assert.ErrorIs(t, err, errUnreachable)
	}
	assert.Equal(t, names, listNames(t, pendingPath(dir)), "failed buffers stay sealed")

	n, err := u.Pass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, names, tr.Delivered())
	assert.Equal(t, names, listNames(t, uploadedPath(dir)))
}

func TestUploader_CanceledPassMakesNoAttempt(t *testing.T) {
	dir := t.TempDir()
	sealBuffer(t, newTestStore(t, dir), t0, 1)

	tr := newFakeTransport()
	u, _ := newTestUploader(t, dir, tr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := u.Pass(ctx)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, tr.Attempts())
}

func TestUploader_BackoffAfterFailure(t *testing.T) {
	dir := t.TempDir()
	sealBuffer(t, newTestStore(t, dir), t0, 1)

	tr := newFakeTransport()
	tr.fail = func(int, domain.UploadJob) error { return errUnreachable }
	u, clk := newTestUploader(t, dir, tr)

	_, err := u.Pass(context.Background())
	require.Error(t, err)
	first := u.retryAtTime().Sub(clk.Now())
	assert.InDelta(t, float64(DefaultBackoffInitial), float64(first), float64(DefaultBackoffInitial)*0.2)

	_, err = u.Pass(context.Background())
	require.Error(t, err)
	second := u.retryAtTime().Sub(clk.Now())
	assert.Greater(t, second, first)

	for i := 0; i < 20; i++ {
		_, _ = u.Pass(context.Background())
	}
	assert.LessOrEqual(t, u.retryAtTime().Sub(clk.Now()), time.Duration(float64(time.Minute)*1.2), "backoff is capped at the interval")

	tr.fail = nil
	_, err = u.Pass(context.Background())
	require.NoError(t, err)
	assert.True(t, u.retryAtTime().IsZero(), "success clears the backoff")
}

func TestUploader_RunScansOnStartAndOnTick(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t, dir)
	first := sealBuffer(t, store, t0, 1)

	tr := newFakeTransport()
	u, clk := newTestUploader(t, dir, tr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- u.Run(ctx) }()

	tr.waitDelivered(t, first)

	second := sealBuffer(t, store, t0.Add(time.Minute), 1)
	tk := waitTicker(t, clk, time.Minute)
	require.True(t, tk.Tick(clk.Advance(time.Minute)))
	tr.waitDelivered(t, second)

	cancel()
	require.NoError(t, <-done)
}

func TestUploader_TriggerRunsPass(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t, dir)

	tr := newFakeTransport()
	u, clk := newTestUploader(t, dir, tr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- u.Run(ctx) }()

	// The ticker exists once the initial pass is over.
	waitTicker(t, clk, time.Minute)

	name := sealBuffer(t, store, t0, 2)
	u.Trigger()
	u.Trigger()
	tr.waitDelivered(t, name)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, []string{name}, tr.Delivered())
}

func TestUploader_TriggerSuppressedDuringBackoff(t *testing.T) {
	dir := t.TempDir()
	store := newTestStore(t, dir)
	name := sealBuffer(t, store, t0, 1)

	tr := newFakeTransport()
	tr.fail = func(attempt int, _ domain.UploadJob) error {
		if attempt == 1 {
			return errUnreachable
		}
		return nil
	}
	u, clk := newTestUploader(t, dir, tr)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- u.Run(ctx) }()

	tk := waitTicker(t, clk, time.Minute)
	require.Equal(t, 1, tr.Attempts(), "initial pass failed")

	u.Trigger()
	// A scheduled tick is handled after the trigger has been consumed.
	require.True(t, tk.Tick(clk.Now()))
	tr.waitDelivered(t, name)
	assert.Equal(t, 2, tr.Attempts(), "trigger during backoff made no attempt")

	cancel()
	require.NoError(t, <-done)
}
