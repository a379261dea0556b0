package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	logAdapter "github.com/bicycledata/sensorship/internal/adapters/log"
	"github.com/bicycledata/sensorship/internal/cliconfig"
	"github.com/bicycledata/sensorship/internal/ports"
	"github.com/bicycledata/sensorship/pkg/sensorship"
)

const helpDescription = `
Sample a sensor, buffer every reading to local CSV files and ship sealed
buffers to the collection server.

Highlights:
  - Readings are synced to disk as they are taken; nothing is lost when the
    network or the process goes away.
  - Buffers are uploaded oldest first and archived under uploaded/ once the
    server has acknowledged them.
  - A termination signal seals the current buffer and makes one last upload
    attempt before exiting.
`

var exampleUsage = strings.TrimSpace(`
  sensorship --hash <device-hash> --name button --sensor template --stdout
  sensorship --hash <device-hash> --name lidar --measurement-frequency 10 --upload-interval 60
  sensorship --config $HOME/.sensorship/config.toml --metrics-addr :9108
`)

// metricsShutdownTimeout bounds the shutdown of the metrics endpoint.
const metricsShutdownTimeout = 5 * time.Second

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	bootLog := logAdapter.Console()

	root := &cobra.Command{
		Use:     "sensorship",
		Short:   "Capture sensor readings to disk and upload them to the collection server",
		Long:    strings.TrimSpace(helpDescription),
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cliconfig.Resolve(&cfg, cfgPath, cliconfig.ChangedFlags(cmd.Flags())); err != nil {
				return err
			}
			// Configuration is valid; later failures are not usage errors.
			cmd.SilenceUsage = true

			zl, closer, err := logAdapter.Setup(logAdapter.Options{
				Dir:     cfg.LogDir,
				Name:    cfg.Name,
				Level:   cfg.LogLevel,
				Console: cfg.Stdout,
			})
			if err != nil {
				return fmt.Errorf("setup logging: %w", err)
			}
			defer closer.Close()

			zl.Info().
				Str("version", getVersion()).
				Interface("config", cfg.Masked()).
				Msg("configuration")

			return run(cfg, zl)
		},
	}

	cliconfig.BindFlags(root.Flags(), &cfg, &cfgPath)

	if err := root.Execute(); err != nil {
		bootLog.Error().Err(err).Msg("sensorship")
		os.Exit(1)
	}
}

func run(cfg cliconfig.Config, zl zerolog.Logger) error {
	logger := logAdapter.NewZerologAdapter(zl)

	opts := []sensorship.Option{sensorship.WithLogger(logger)}
	if cfg.MetricsAddr != "" {
		opts = append(opts, sensorship.WithMetricsRegistry(prometheus.NewRegistry()))
	}

	agent, err := sensorship.New(agentConfig(cfg), opts...)
	if err != nil {
		return err
	}

	var metricsSrv *http.Server
	if h := agent.MetricsHandler(); h != nil {
		metricsSrv = serveMetrics(cfg.MetricsAddr, h, logger)
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	done := make(chan struct{})
	defer close(done)
	go watchSignals(sigCh, done, cancel, os.Exit, logger)

	err = agent.Run(ctx)

	if metricsSrv != nil {
		sctx, scancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		_ = metricsSrv.Shutdown(sctx)
		scancel()
	}

	if err != nil {
		logger.Error("sensorship stopped with error", ports.Err(err))
		return err
	}
	logger.Info("sensorship stopped")
	return nil
}

// watchSignals cancels the run on the first signal and exits on the second,
// abandoning the drain.
func watchSignals(sigCh <-chan os.Signal, done <-chan struct{}, cancel context.CancelFunc, exit func(int), logger ports.Logger) {
	draining := false
	for {
		select {
		case sig := <-sigCh:
			if draining {
				logger.Error("received second signal, exiting without drain", ports.String("signal", sig.String()))
				exit(1)
				return
			}
			draining = true
			logger.Info("received signal, draining", ports.String("signal", sig.String()))
			cancel()
		case <-done:
			return
		}
	}
}

func agentConfig(cfg cliconfig.Config) sensorship.Config {
	return sensorship.Config{
		Hash:                 cfg.Hash,
		Name:                 cfg.Name,
		Sensor:               cfg.Sensor,
		DataDir:              cfg.DataDir,
		MirrorDir:            cfg.MirrorDir,
		ServiceURL:           cfg.ServiceURL,
		AuthKey:              cfg.AuthKey,
		Gzip:                 cfg.Gzip,
		Watch:                cfg.Watch,
		MeasurementFrequency: cfg.MeasurementFrequency,
		UploadInterval:       cfg.UploadInterval,
		RolloverInterval:     cfg.RolloverInterval,
		MaxBufferBytes:       int64(cfg.MaxBufferBytes),
		SensorTimeout:        cfg.SensorTimeout,
		UploadTimeout:        cfg.UploadTimeout,
		DrainTimeout:         cfg.DrainTimeout,
		MaxSensorFailures:    cfg.MaxSensorFailures,
	}
}

func serveMetrics(addr string, handler http.Handler, logger ports.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics endpoint stopped", ports.String("addr", addr), ports.Err(err))
		}
	}()
	logger.Info("serving metrics", ports.String("addr", addr))
	return srv
}
