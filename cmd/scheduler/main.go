// Command scheduler runs the Scheduler service: worker assignment, staged
// task dispatch, heartbeat tracking, and the crash-reclaim reaper.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teaclave-go/platform/internal/attestation"
	"github.com/teaclave-go/platform/internal/config"
	"github.com/teaclave-go/platform/internal/metrics"
	"github.com/teaclave-go/platform/internal/obslog"
	"github.com/teaclave-go/platform/internal/rpcapi"
	"github.com/teaclave-go/platform/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the core configuration document")
	flag.Parse()

	doc, err := config.Load(*configPath)
	if err != nil {
		os.Exit(1)
	}

	logLevel := config.EnvOrSecret("", "LOG_LEVEL", "info")
	logFormat := config.EnvOrSecret("", "LOG_FORMAT", "text")
	logger := obslog.New("scheduler", logLevel, logFormat)

	self := attestation.NewSelf()
	logger.Infof("self measurement %s (simulated=%v)", attestation.FingerprintReport(self.Measurement()), self.Measurement().Simulated)

	storageAddr := doc.InternalEndpoints.Storage.AdvertisedAddress
	managementAddr := doc.InternalEndpoints.Management.AdvertisedAddress
	if storageAddr == "" || managementAddr == "" {
		logger.Error("exit 3: internal_endpoints.{storage,management}.advertised_address are required")
		os.Exit(3)
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	backend := rpcapi.NewRemoteBackend(storageAddr, httpClient)
	mgmt := rpcapi.NewRemoteManagement(managementAddr, httpClient)

	probeCtx, cancelProbe := context.WithTimeout(context.Background(), 5*time.Second)
	if _, err := backend.GetKeysByPrefix(probeCtx, "task-"); err != nil {
		logger.Errorf("exit 3: storage gateway unreachable at %s: %v", storageAddr, err)
		cancelProbe()
		os.Exit(3)
	}
	cancelProbe()

	registerer := prometheus.NewRegistry()
	m := metrics.New(registerer)

	execDeadline := 5 * time.Minute
	reapInterval := 30 * time.Second
	sched := scheduler.New(backend, mgmt, logger, m, execDeadline, reapInterval)

	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	if err := sched.StartReaper(reaperCtx); err != nil {
		logger.Fatalf("start reaper: %v", err)
	}

	httpMux := http.NewServeMux()
	httpMux.Handle("/", rpcapi.NewSchedulerMeshRouter(sched))
	httpMux.Handle("/metrics", promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}))

	addr := doc.InternalEndpoints.Scheduler.ListenAddress
	if addr == "" {
		addr = ":9403"
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("scheduler service listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("scheduler server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down scheduler service")
	sched.Stop()
	stopReaper()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("scheduler server shutdown: %v", err)
	}
}
