// Command frontend runs the user-facing API surface: login/registration,
// function/file/task RPCs, everything named in spec §6.5. It holds no
// state of its own, calling out to Storage (for credentials) and
// Management (for everything else) over the service mesh.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	logger := obslog.New("frontend", logLevel, logFormat)

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
	if _, err := backend.GetKeysByPrefix(probeCtx, "user-"); err != nil {
		logger.Errorf("exit 3: storage gateway unreachable at %s: %v", storageAddr, err)
		cancelProbe()
		os.Exit(3)
	}
	cancelProbe()

	jwtSecret := []byte(config.EnvOrSecret("", "JWT_SECRET", ""))
	if len(jwtSecret) < 32 {
		logger.Warn("JWT_SECRET unset or too short; using an insecure development default")
		jwtSecret = []byte("development-insecure-frontend-secret-32bytes!!")
	}
	jwtExpiry := 24 * time.Hour

	auth := rpcapi.NewAuthenticator(jwtSecret, jwtExpiry, backend)
	front := rpcapi.NewFrontend(mgmt, auth, logger)
	limiter := rpcapi.NewRateLimiter(20, 40, 100000)
	router := rpcapi.NewRouter(front, auth, limiter, logger)

	addr := doc.APIEndpoints.Frontend.ListenAddress
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("frontend listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("frontend server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down frontend")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("frontend server shutdown: %v", err)
	}
}
