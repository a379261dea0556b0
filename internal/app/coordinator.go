package app

import (
	"context"
	"errors"
	"time"

	"github.com/bicycledata/sensorship/internal/domain"
	"github.com/bicycledata/sensorship/internal/ports"
)

// Watcher runs alongside the upload worker until its context is canceled.
type Watcher interface {
	Run(ctx context.Context) error
}

// CoordinatorConfig holds the coordinator settings.
type CoordinatorConfig struct {
	// DrainTimeout bounds both the wait for the workers to stop and the
	// final upload pass.
	DrainTimeout time.Duration
}

// Coordinator starts the sampler and the upload worker, and drains them on
// shutdown so that every measurement ends up in a sealed buffer.
type Coordinator struct {
	cfg       CoordinatorConfig
	store     ports.BufferStore
	sampler   *Sampler
	uploader  *Uploader
	watcher   Watcher
	logger    ports.Logger
	lifecycle *Lifecycle
}

// NewCoordinator creates a coordinator. watcher and emitter may be nil.
func NewCoordinator(cfg CoordinatorConfig, store ports.BufferStore, sampler *Sampler, uploader *Uploader, watcher Watcher, logger ports.Logger, emitter EventEmitter) *Coordinator {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = ShutdownTimeout
	}
	return &Coordinator{
		cfg:       cfg,
		store:     store,
		sampler:   sampler,
		uploader:  uploader,
		watcher:   watcher,
		logger:    logger,
		lifecycle: NewLifecycle(logger, emitter),
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return c.lifecycle.State()
}

// Run prepares the data directory, starts the workers and blocks until ctx
// is canceled or the sampler fails. It then drains: the sampler seals its
// buffer, the upload loop stops and one final pass uploads what it can.
//
// Run returns nil after a shutdown requested through ctx, the sampler's
// error when sampling failed, and ErrShutdownTimeout when the workers did
// not stop within the drain timeout.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := c.lifecycle.TransitionTo(StateStarting, "run requested"); err != nil {
		return err
	}

	if err := c.prepare(); err != nil {
		_ = c.lifecycle.TransitionTo(StateDraining, "start failed")
		_ = c.lifecycle.TransitionTo(StateStopped, "start failed")
		return err
	}

	// Measurements are only taken while Running.
	_ = c.lifecycle.TransitionTo(StateRunning, "starting workers")

	// The workers get their own contexts so they can be stopped in order.
	samplerCtx, stopSampler := context.WithCancel(context.Background())
	defer stopSampler()
	uploadCtx, stopUploader := context.WithCancel(context.Background())
	defer stopUploader()

	samplerDone := make(chan error, 1)
	c.lifecycle.AddWorker()
	go func() {
		defer c.lifecycle.WorkerDone()
		samplerDone <- c.sampler.Run(samplerCtx)
	}()

	c.lifecycle.AddWorker()
	go func() {
		defer c.lifecycle.WorkerDone()
		_ = c.uploader.Run(uploadCtx)
	}()

	if c.watcher != nil {
		c.lifecycle.AddWorker()
		go func() {
			defer c.lifecycle.WorkerDone()
			if err := c.watcher.Run(uploadCtx); err != nil {
				c.logger.Warn("pending watcher stopped, relying on scheduled passes", ports.Err(err))
			}
		}()
	}

	var cause error
	samplerStopped := false
	reason := "shutdown requested"
	select {
	case <-ctx.Done():
	case cause = <-samplerDone:
		samplerStopped = true
		reason = "sampler stopped"
		if domain.IsFatal(cause) {
			reason = "sampling failed"
			c.logger.Error("sampling failed", ports.Err(cause))
		} else if cause != nil {
			c.logger.Warn("sampler stopped", ports.Err(cause))
		}
	}

	_ = c.lifecycle.TransitionTo(StateDraining, reason)
	stopSampler()
	stopUploader()

	waitErr := c.lifecycle.WaitWithTimeout(c.cfg.DrainTimeout)
	if !samplerStopped {
		select {
		case cause = <-samplerDone:
		default:
		}
	}

	c.finalPass()

	_ = c.lifecycle.TransitionTo(StateStopped, "drained")

	if cause != nil {
		return cause
	}
	return waitErr
}

func (c *Coordinator) prepare() error {
	if err := c.store.Init(); err != nil {
		c.logger.Error("failed to prepare data directory", ports.Err(err))
		return err
	}
	recovered, err := c.store.RecoverActive()
	if err != nil {
		c.logger.Error("failed to recover active buffers", ports.Err(err))
		return err
	}
	for _, name := range recovered {
		c.logger.Info("recovered buffer from previous run", ports.String("buffer", name))
	}
	return nil
}

// finalPass makes one synchronous attempt to upload everything sealed,
// including the buffer the sampler sealed while draining.
func (c *Coordinator) finalPass() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DrainTimeout)
	defer cancel()

	n, err := c.uploader.Pass(ctx)
	switch {
	case err == nil:
		c.logger.Info("final upload pass complete", ports.Int("uploaded", n))
	case errors.Is(err, context.DeadlineExceeded):
		c.logger.Warn("final upload pass timed out, remaining buffers stay pending",
			ports.Int("uploaded", n),
		)
	default:
		c.logger.Warn("final upload pass incomplete, remaining buffers stay pending",
			ports.Int("uploaded", n),
			ports.Err(err),
		)
	}
}
