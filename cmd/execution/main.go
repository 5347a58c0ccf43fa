// Command execution runs an Execution Worker: pulls staged tasks from the
// Scheduler, resolves inputs through the allowlisted fetcher, dispatches to
// the executor registry, and uploads sealed results.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teaclave-go/platform/internal/attestation"
	"github.com/teaclave-go/platform/internal/config"
	"github.com/teaclave-go/platform/internal/execution"
	"github.com/teaclave-go/platform/internal/execution/executors"
	"github.com/teaclave-go/platform/internal/model"
	"github.com/teaclave-go/platform/internal/obslog"
	"github.com/teaclave-go/platform/internal/rpcapi"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the core configuration document")
	workerID := flag.String("worker-id", "", "stable worker identity; generated if empty")
	flag.Parse()

	doc, err := config.Load(*configPath)
	if err != nil {
		os.Exit(1)
	}

	logLevel := config.EnvOrSecret("", "LOG_LEVEL", "info")
	logFormat := config.EnvOrSecret("", "LOG_FORMAT", "text")
	logger := obslog.New("execution", logLevel, logFormat)

	self := attestation.NewSelf()
	logger.Infof("self measurement %s (simulated=%v)", attestation.FingerprintReport(self.Measurement()), self.Measurement().Simulated)

	id := *workerID
	if id == "" {
		id = "worker-" + uuid.NewString()
	}

	schedulerAddr := doc.InternalEndpoints.Scheduler.AdvertisedAddress
	if schedulerAddr == "" {
		logger.Error("exit 3: internal_endpoints.scheduler.advertised_address is required")
		os.Exit(3)
	}
	sched := rpcapi.NewRemoteScheduler(schedulerAddr, &http.Client{Timeout: 10 * time.Second})

	allowedHosts := strings.FieldsFunc(config.EnvOrSecret("", "EXECUTION_ALLOWED_HOSTS", ""), func(r rune) bool { return r == ',' })
	fetcher := execution.NewFetcher(allowedHosts, 30*time.Second)

	registry := map[string]map[string]execution.Executor{
		string(model.ExecutorBuiltin):        executors.Registry(),
		string(model.ExecutorPython):         {"python-tier": execution.NewPythonTierExecutor()},
		string(model.ExecutorWAMicroRuntime): {"wa-micro-runtime": execution.NewWAMicroRuntimeExecutor()},
	}

	worker := execution.NewWorker(id, sched, fetcher, registry, logger, 2*time.Second, 5*time.Minute)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	addr := doc.InternalEndpoints.Execution.ListenAddress
	if addr == "" {
		addr = ":9404"
	}
	metricsServer := &http.Server{Addr: addr, Handler: metricsMux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("execution metrics server error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Infof("execution worker %s starting pull loop against %s", id, schedulerAddr)
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down execution worker")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_ = metricsServer.Shutdown(shutdownCtx)
			cancel()
			return
		default:
		}

		ran, err := worker.RunOnce(ctx)
		if err != nil {
			logger.Errorf("task run failed: %v", err)
			continue
		}
		if !ran {
			select {
			case <-ctx.Done():
			case <-time.After(worker.IdleInterval()):
			}
		}
	}
}
