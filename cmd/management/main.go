// Command management runs the Task Lifecycle Management service: functions,
// files, and tasks CRUD plus the staging pipeline, talking to the Storage
// Gateway over the service mesh and exposing its own mesh surface to the
// frontend and scheduler.
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
	"github.com/teaclave-go/platform/internal/auditbus"
	"github.com/teaclave-go/platform/internal/config"
	"github.com/teaclave-go/platform/internal/management"
	"github.com/teaclave-go/platform/internal/metrics"
	"github.com/teaclave-go/platform/internal/obslog"
	"github.com/teaclave-go/platform/internal/rpcapi"
	"github.com/teaclave-go/platform/internal/storage"
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
	logger := obslog.New("management", logLevel, logFormat)

	self := attestation.NewSelf()
	logger.Infof("self measurement %s (simulated=%v)", attestation.FingerprintReport(self.Measurement()), self.Measurement().Simulated)

	storageAddr := doc.InternalEndpoints.Storage.AdvertisedAddress
	if storageAddr == "" {
		logger.Error("exit 3: internal_endpoints.storage.advertised_address is required")
		os.Exit(3)
	}
	backend := rpcapi.NewRemoteBackend(storageAddr, &http.Client{Timeout: 10 * time.Second})

	ctx, cancelProbe := context.WithTimeout(context.Background(), 5*time.Second)
	if _, err := backend.GetKeysByPrefix(ctx, storage.PrefixFunction); err != nil {
		logger.Errorf("exit 3: storage gateway unreachable at %s: %v", storageAddr, err)
		cancelProbe()
		os.Exit(3)
	}
	cancelProbe()

	registerer := prometheus.NewRegistry()
	m := metrics.New(registerer)
	audit := auditbus.New()
	audit.Subscribe(auditbus.LoggerSink(logger))

	svc := management.New(backend, logger, m, audit)

	reconciler := management.NewReconciler(backend, svc)
	reconcileCtx, cancelReconcile := context.WithTimeout(context.Background(), 30*time.Second)
	reenqueued, err := reconciler.Run(reconcileCtx)
	cancelReconcile()
	if err != nil {
		logger.Warnf("startup reconciliation failed: %v", err)
	} else if reenqueued > 0 {
		logger.Infof("startup reconciliation re-enqueued %d staged task(s)", reenqueued)
	}

	httpMux := http.NewServeMux()
	httpMux.Handle("/", rpcapi.NewManagementMeshRouter(svc))
	httpMux.Handle("/metrics", promhttp.HandlerFor(registerer, promhttp.HandlerOpts{}))

	addr := doc.InternalEndpoints.Management.ListenAddress
	if addr == "" {
		addr = ":9402"
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("management service listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("management server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down management service")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("management server shutdown: %v", err)
	}
}
