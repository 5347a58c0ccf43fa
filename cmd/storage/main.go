// Command storage runs the Storage Gateway service: the only process that
// touches the on-disk key-value store, exposed to the rest of the core over
// the internal service mesh.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teaclave-go/platform/internal/attestation"
	"github.com/teaclave-go/platform/internal/config"
	"github.com/teaclave-go/platform/internal/obslog"
	"github.com/teaclave-go/platform/internal/rpcapi"
	"github.com/teaclave-go/platform/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the core configuration document")
	flag.Parse()

	doc, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("exit 1: load config: %v", err)
		os.Exit(1)
	}

	logLevel := config.EnvOrSecret("", "LOG_LEVEL", "info")
	logFormat := config.EnvOrSecret("", "LOG_FORMAT", "text")
	logger := obslog.New("storage", logLevel, logFormat)

	self := attestation.NewSelf()
	logger.Infof("self measurement %s (simulated=%v)", attestation.FingerprintReport(self.Measurement()), self.Measurement().Simulated)

	var backend storage.Backend
	switch doc.Storage.Backend {
	case "memory":
		backend = storage.NewMemoryBackend()
	case "bolt", "":
		boltBackend, err := storage.NewBoltBackend(doc.Storage.DataDir)
		if err != nil {
			logger.Errorf("exit 3: open bolt backend at %s: %v", doc.Storage.DataDir, err)
			os.Exit(3)
		}
		backend = boltBackend
	default:
		logger.Errorf("exit 1: unknown storage backend %q", doc.Storage.Backend)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()

	mux := http.NewServeMux()
	mux.Handle("/internal/v1/storage/", rpcapi.NewStorageMeshRouter(backend))
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	addr := doc.InternalEndpoints.Storage.ListenAddress
	if addr == "" {
		addr = ":9401"
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("storage gateway listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("storage server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down storage gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("storage server shutdown: %v", err)
	}
	if err := backend.Close(shutdownCtx); err != nil {
		logger.Errorf("storage backend close: %v", err)
	}
}
