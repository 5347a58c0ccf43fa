// Command accesscontrol runs the Access Control Engine as an independently
// deployable service exposing the same decision table the frontend links
// in-process, for policy-simulation and audit tooling.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teaclave-go/platform/internal/attestation"
	"github.com/teaclave-go/platform/internal/config"
	"github.com/teaclave-go/platform/internal/obslog"
	"github.com/teaclave-go/platform/internal/rpcapi"
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
	logger := obslog.New("accesscontrol", logLevel, logFormat)

	self := attestation.NewSelf()
	logger.Infof("self measurement %s (simulated=%v)", attestation.FingerprintReport(self.Measurement()), self.Measurement().Simulated)

	httpMux := http.NewServeMux()
	httpMux.Handle("/", rpcapi.NewAccessControlMeshRouter())
	httpMux.Handle("/metrics", promhttp.Handler())

	addr := doc.InternalEndpoints.AccessControl.ListenAddress
	if addr == "" {
		addr = ":9405"
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           httpMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("access control service listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("access control server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down access control service")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("access control server shutdown: %v", err)
	}
}
