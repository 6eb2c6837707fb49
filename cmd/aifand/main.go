// Command aifand assembles a minimal thermal-management process tree —
// one Environment head reading simulated sensors, a FixedSpeedController,
// and an Environment tail writing simulated actuators — and drives it
// with a WallRunner until interrupted. It exists to exercise the full
// stack end to end; a real deployment replaces SimulatedEnvironment with
// a HardwareIO backed by actual sensors and actuators.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/johnwbyrd/aifand/config"
	"github.com/johnwbyrd/aifand/controllers/fixed"
	"github.com/johnwbyrd/aifand/device"
	"github.com/johnwbyrd/aifand/environment"
	"github.com/johnwbyrd/aifand/permissions"
	"github.com/johnwbyrd/aifand/pipeline"
	"github.com/johnwbyrd/aifand/runner"
	"github.com/johnwbyrd/aifand/state"
	"github.com/johnwbyrd/aifand/telemetry/logging"
	"github.com/johnwbyrd/aifand/telemetry/metrics"
	"github.com/johnwbyrd/aifand/telemetry/tracing"
)

func main() {
	var (
		configPath   string
		metricsAddr  string
		intervalFlag time.Duration
	)
	flag.StringVar(&configPath, "config", "", "Path to a RuntimeConfig YAML file (optional)")
	flag.StringVar(&metricsAddr, "metrics-addr", ":9090", "Address to serve /metrics on")
	flag.DurationVar(&intervalFlag, "interval", time.Second, "Default tick interval for the demo pipeline")
	flag.Parse()

	logger := logging.New(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	var watcher *config.Watcher
	if configPath != "" {
		w, err := config.NewWatcher(configPath, func(err error) {
			logger.WarnCtx(context.Background(), "config reload failed, keeping previous config", "error", err)
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "aifand: load config %s: %v\n", configPath, err)
			os.Exit(1)
		}
		watcher = w
		defer watcher.Close()

		if m, err := watcher.Current().ToMatrix(); err == nil {
			permissions.SetDefault(m)
		}
		go reloadPermissionsPeriodically(watcher)
	}

	reg := prometheus.NewRegistry()
	metricsProvider := metrics.NewPrometheusProvider(reg)
	tracer := tracing.New("aifand")

	initial := state.FromDevicesUnchecked(
		device.New(device.Sensor, "temp", map[string]any{"value": 42.0, "unit": "celsius"}),
		device.New(device.Actuator, "fan", map[string]any{"value": 0.0, "min": 0.0, "max": 255.0}),
	)
	hw := environment.NewSimulatedEnvironment(initial)

	intervalNs := int64(intervalFlag)
	envHead := environment.New("sensors", intervalNs, hw)
	fanCtl, err := fixed.New("fan-controller", intervalNs, map[string]float64{"fan": 150})
	if err != nil {
		fmt.Fprintf(os.Stderr, "aifand: construct controller: %v\n", err)
		os.Exit(1)
	}
	envTail := environment.New("actuators", intervalNs, hw)

	pipe := pipeline.New("thermal-pipeline", intervalNs)
	pipe.Append(envHead)
	pipe.Append(fanCtl)
	pipe.Append(envTail)
	pipe.Logger = logger
	pipe.Metrics = metricsProvider
	pipe.Tracer = tracer

	if watcher != nil {
		applyIntervalOverrides(watcher.Current(), pipe, envHead, fanCtl, envTail)
	}

	wr := runner.NewWallRunner(pipe)
	wr.Logger = logger
	wr.Metrics = metricsProvider

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpServer := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCtx(context.Background(), "metrics server failed", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	wr.Start(ctx)
	logger.InfoCtx(ctx, "aifand started", "pipeline", pipe.Name(), "metrics_addr", metricsAddr)

	<-sigCh
	logger.InfoCtx(ctx, "shutdown signal received, stopping")
	wr.Stop()
	_ = httpServer.Close()
}

// reloadPermissionsPeriodically republishes the watcher's current
// permission matrix to the process-wide default, picking up hot-reloaded
// overrides without requiring a restart.
func reloadPermissionsPeriodically(w *config.Watcher) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		if m, err := w.Current().ToMatrix(); err == nil {
			permissions.SetDefault(m)
		}
	}
}

// applyIntervalOverrides pushes config-supplied per-process interval
// overrides onto an already-constructed demo tree.
func applyIntervalOverrides(cfg *config.RuntimeConfig, procs ...interface {
	Name() string
	SetIntervalNs(int64)
}) {
	for _, p := range procs {
		if ns, ok := cfg.ProcessInterval(p.Name()); ok {
			p.SetIntervalNs(ns)
		}
	}
}
