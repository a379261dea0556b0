package app

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"time"

	"github.com/bicycledata/sensorship/internal/clock"
	"github.com/bicycledata/sensorship/internal/domain"
	"github.com/bicycledata/sensorship/internal/ports"
)

// Default upload worker configuration values.
const (
	DefaultUploadInterval = 300 * time.Second
	DefaultUploadTimeout  = 10 * time.Second
)

// UploaderConfig holds the upload worker settings.
type UploaderConfig struct {
	// Interval is the period of scheduled passes. It also caps the failure
	// backoff.
	Interval time.Duration

	// Timeout bounds a single upload attempt.
	Timeout time.Duration

	// BackoffInitial is the first delay after a failed pass.
	BackoffInitial time.Duration
}

// Uploader moves sealed buffers to the server, oldest first, one at a time.
// A pass runs at start, on every interval tick and whenever Trigger is called.
// A failed attempt ends the pass; the buffer stays sealed and is retried by a
// later pass. Triggered passes are skipped until the failure backoff expires.
type Uploader struct {
	cfg       UploaderConfig
	identity  domain.DeviceIdentity
	store     ports.BufferStore
	transport ports.Transport
	clock     clock.Clock
	logger    ports.Logger
	metrics   ports.Metrics
	trigger   chan struct{}

	passMu  sync.Mutex
	backoff *backoff

	retryMu sync.Mutex
	retryAt time.Time
}

// NewUploader creates an upload worker.
func NewUploader(cfg UploaderConfig, identity domain.DeviceIdentity, store ports.BufferStore, transport ports.Transport, clk clock.Clock, logger ports.Logger, metrics ports.Metrics) *Uploader {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultUploadInterval
	}
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = DefaultBackoffInitial
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Uploader{
		cfg:       cfg,
		identity:  identity,
		store:     store,
		transport: transport,
		clock:     clk,
		logger:    logger,
		metrics:   metrics,
		trigger:   make(chan struct{}, 1),
		backoff:   newBackoff(cfg.BackoffInitial, cfg.Interval),
	}
}

// Trigger requests a pass as soon as possible. It never blocks; triggers
// that arrive while one is already queued are merged.
func (u *Uploader) Trigger() {
	select {
	case u.trigger <- struct{}{}:
	default:
	}
}

// Run executes passes until ctx is canceled. Upload failures never end Run.
func (u *Uploader) Run(ctx context.Context) error {
	u.runPass(ctx, "start")

	ticker := u.clock.NewTicker(u.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			u.runPass(ctx, "schedule")
		case <-u.trigger:
			if now, at := u.clock.Now(), u.retryAtTime(); now.Before(at) {
				u.logger.Debug("triggered pass suppressed by backoff",
					ports.Duration("remaining", at.Sub(now)),
				)
				continue
			}
			u.runPass(ctx, "trigger")
		}
	}
}

func (u *Uploader) runPass(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	n, err := u.Pass(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		u.logger.Debug("upload pass ended early",
			ports.String("reason", reason),
			ports.Int("uploaded", n),
			ports.Err(err),
		)
	}
}

// Pass uploads every sealed buffer in name order and returns how many were
// delivered. It stops at the first failure and returns that error, or the
// context error when ctx is canceled between attempts. An attempt already
// in flight is not interrupted by ctx.
func (u *Uploader) Pass(ctx context.Context) (int, error) {
	u.passMu.Lock()
	defer u.passMu.Unlock()

	names, err := u.store.Sealed()
	if err != nil {
		u.logger.Error("failed to list sealed buffers", ports.Err(err))
		return 0, err
	}
	u.metrics.PendingBuffers(len(names))

	uploaded := 0
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return uploaded, err
		}
		job, err := u.store.Load(name)
		if errors.Is(err, fs.ErrNotExist) {
			// Removed since the scan.
			continue
		}
		if err == nil {
			err = u.upload(ctx, job)
		}
		if err != nil {
			u.failed(err)
			u.metrics.PendingBuffers(len(names) - i)
			return uploaded, err
		}
		uploaded++
		u.metrics.PendingBuffers(len(names) - i - 1)
	}

	u.succeeded()
	if uploaded > 0 {
		u.logger.Info("upload pass complete", ports.Int("uploaded", uploaded))
	}
	return uploaded, nil
}

func (u *Uploader) upload(ctx context.Context, job domain.UploadJob) error {
	name := job.Name
	actx := context.WithoutCancel(ctx)
	if u.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(actx, u.cfg.Timeout)
		defer cancel()
	}

	start := u.clock.Now()
	if err := u.transport.Upload(actx, u.identity, job); err != nil {
		u.metrics.UploadFailed()
		var ue *domain.UploadError
		if !errors.As(err, &ue) {
			err = &domain.UploadError{Buffer: name, Err: err}
		}
		return err
	}
	elapsed := u.clock.Now().Sub(start)

	if err := u.store.MarkUploaded(name); err != nil {
		u.logger.Error("failed to archive uploaded buffer",
			ports.String("buffer", name),
			ports.Err(err),
		)
		return err
	}

	u.metrics.UploadSucceeded(job.Size(), elapsed)
	u.logger.Info("buffer uploaded",
		ports.String("buffer", name),
		ports.Int("bytes", job.Size()),
		ports.Duration("elapsed", elapsed),
	)
	return nil
}

func (u *Uploader) failed(err error) {
	delay := u.backoff.Next()
	u.setRetryAt(u.clock.Now().Add(delay))
	u.logger.Warn("upload failed",
		ports.Err(err),
		ports.Duration("backoff", delay),
	)
}

func (u *Uploader) succeeded() {
	u.backoff.Reset()
	u.setRetryAt(time.Time{})
}

func (u *Uploader) retryAtTime() time.Time {
	u.retryMu.Lock()
	defer u.retryMu.Unlock()
	return u.retryAt
}

func (u *Uploader) setRetryAt(t time.Time) {
	u.retryMu.Lock()
	u.retryAt = t
	u.retryMu.Unlock()
}
