package sensorship

import (
	"context"
	"net/http"
	"sync"

	fsAdapter "github.com/bicycledata/sensorship/internal/adapters/fs"
	httpAdapter "github.com/bicycledata/sensorship/internal/adapters/http"
	logAdapter "github.com/bicycledata/sensorship/internal/adapters/log"
	metricsAdapter "github.com/bicycledata/sensorship/internal/adapters/metrics"
	"github.com/bicycledata/sensorship/internal/app"
	"github.com/bicycledata/sensorship/internal/clock"
	"github.com/bicycledata/sensorship/internal/domain"
	"github.com/bicycledata/sensorship/internal/ports"
	"github.com/bicycledata/sensorship/internal/sensors"
)

// Agent samples one sensor and ships its buffers. Use New to create an
// instance and Run to operate it.
type Agent struct {
	config   Config
	coord    *app.Coordinator
	store    *fsAdapter.BufferStore
	uploader *app.Uploader
	metrics  *metricsAdapter.Prometheus
	logger   ports.Logger

	mu      sync.Mutex
	running bool
}

// New creates an agent in StateStopped. It returns an error wrapping
// ErrInvalidConfig when cfg is incomplete or names an unknown sensor.
func New(cfg Config, opts ...Option) (*Agent, error) {
	// Set defaults
	cfg.SetDefaults()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Apply options
	o := options{httpClient: &http.Client{Timeout: cfg.UploadTimeout}}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = logAdapter.NewNoopLogger()
	}

	clk := clock.Real{}
	sensor := o.sensor
	if sensor == nil {
		s, err := sensors.New(cfg.Sensor, clk)
		if err != nil {
			return nil, err
		}
		sensor = s
	}

	var metrics ports.Metrics = ports.NopMetrics{}
	var prom *metricsAdapter.Prometheus
	if o.registry != nil {
		prom = metricsAdapter.New(o.registry)
		metrics = prom
	}

	identity := domain.DeviceIdentity{Hash: cfg.Hash, Sensor: cfg.Name}
	mirror := fsAdapter.NewMirror(cfg.MirrorDir, cfg.Name, logger)
	store := fsAdapter.NewBufferStore(cfg.DataDir, cfg.Name, mirror, logger)

	transport := httpAdapter.NewTransport(o.httpClient, httpAdapter.Options{
		ServiceURL: cfg.ServiceURL,
		AuthKey:    cfg.AuthKey,
		Gzip:       cfg.Gzip,
	})

	sampler := app.NewSampler(app.SamplerConfig{
		Frequency:         cfg.MeasurementFrequency,
		MaxAge:            cfg.RolloverInterval,
		MaxBytes:          cfg.MaxBufferBytes,
		SensorTimeout:     cfg.SensorTimeout,
		MaxSensorFailures: cfg.MaxSensorFailures,
	}, sensor, store, clk, logger, metrics)

	uploader := app.NewUploader(app.UploaderConfig{
		Interval: cfg.UploadInterval,
		Timeout:  cfg.UploadTimeout,
	}, identity, store, transport, clk, logger, metrics)

	var watcher app.Watcher
	if cfg.Watch {
		watcher = fsAdapter.NewPendingWatcher(store.PendingPath(), uploader.Trigger, logger)
	}

	var emitter app.EventEmitter
	if o.eventHandler != nil {
		emitter = o.eventHandler
	}

	coord := app.NewCoordinator(app.CoordinatorConfig{DrainTimeout: cfg.DrainTimeout},
		store, sampler, uploader, watcher, logger, emitter)

	return &Agent{
		config:   cfg,
		coord:    coord,
		store:    store,
		uploader: uploader,
		metrics:  prom,
		logger:   logger,
	}, nil
}

// Run samples and uploads until ctx is canceled or sampling fails. Before
// returning it seals the current buffer and makes one final upload pass
// bounded by Config.DrainTimeout; buffers that could not be delivered stay
// pending for the next run.
//
// Run returns nil after ctx is canceled, the sampling error (a StorageError
// or an error wrapping ErrSensorFatal) otherwise. An Agent runs once.
func (a *Agent) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return domain.ErrAlreadyRunning
	}
	a.running = true
	a.mu.Unlock()

	a.logger.Info("agent starting",
		ports.String("name", a.config.Name),
		ports.String("data_dir", a.config.DataDir),
		ports.String("service_url", a.config.ServiceURL),
	)
	return a.coord.Run(ctx)
}

// Status returns the current lifecycle state.
func (a *Agent) Status() State {
	return a.coord.State()
}

// UploadNow requests an upload pass without waiting for the schedule.
func (a *Agent) UploadNow() {
	a.uploader.Trigger()
}

// PendingDir returns the directory holding active and sealed buffers.
func (a *Agent) PendingDir() string {
	return a.store.PendingPath()
}

// UploadedDir returns the directory holding delivered buffers.
func (a *Agent) UploadedDir() string {
	return a.store.UploadedPath()
}

// MetricsHandler serves the agent's metrics in the Prometheus exposition
// format. It returns nil unless WithMetricsRegistry was used.
func (a *Agent) MetricsHandler() http.Handler {
	if a.metrics == nil {
		return nil
	}
	return a.metrics.Handler()
}
