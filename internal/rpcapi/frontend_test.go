package rpcapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teaclave-go/platform/internal/auditbus"
	"github.com/teaclave-go/platform/internal/management"
	"github.com/teaclave-go/platform/internal/metrics"
	"github.com/teaclave-go/platform/internal/model"
	"github.com/teaclave-go/platform/internal/obslog"
	"github.com/teaclave-go/platform/internal/storage"
)

func newTestServer(t *testing.T) (*httptest.Server, *Authenticator) {
	t.Helper()
	backend := storage.NewMemoryBackend()
	log := obslog.New("rpcapi-test", "error", "text")
	mgmt := management.New(backend, log, metrics.NewUnregistered(), auditbus.New())
	auth := NewAuthenticator([]byte("test-secret-at-least-32-bytes-long!"), time.Hour, backend)
	front := NewFrontend(mgmt, auth, log)
	limiter := NewRateLimiter(1000, 1000, 10000)
	router := NewRouter(front, auth, limiter, log)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, auth
}

func TestLoginRejectsUnknownUser(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Post(srv.URL+"/v1/login", "application/json", strings.NewReader(`{"user_id":"alice","password":"wrong"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterThenLoginThenCallAuthenticatedRoute(t *testing.T) {
	srv, auth := newTestServer(t)
	ctx := context.Background()

	_, err := auth.Register(ctx, "alice", "hunter2", model.RoleFunctionOwner)
	require.NoError(t, err)

	token, err := auth.Login(ctx, "alice", "hunter2")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/functions", strings.NewReader(`{"name":"echo-fn","executor_type":"builtin"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFunctionsRouteRejectsMissingToken(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Post(srv.URL+"/v1/functions", "application/json", strings.NewReader(`{"name":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterFunctionDeniedForDataOwnerRole(t *testing.T) {
	srv, auth := newTestServer(t)
	ctx := context.Background()
	_, err := auth.Register(ctx, "bob", "hunter2", model.RoleDataOwner)
	require.NoError(t, err)
	token, err := auth.Login(ctx, "bob", "hunter2")
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/functions", strings.NewReader(`{"name":"x","executor_type":"builtin"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
