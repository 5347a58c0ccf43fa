package rpcapi

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teaclave-go/platform/internal/auditbus"
	"github.com/teaclave-go/platform/internal/management"
	"github.com/teaclave-go/platform/internal/metrics"
	"github.com/teaclave-go/platform/internal/model"
	"github.com/teaclave-go/platform/internal/obslog"
	"github.com/teaclave-go/platform/internal/scheduler"
	"github.com/teaclave-go/platform/internal/storage"
)

func TestRemoteSchedulerRoundTripsThroughMeshRouter(t *testing.T) {
	backend := storage.NewMemoryBackend()
	log := obslog.New("mesh-test", "error", "text")
	m := metrics.NewUnregistered()
	mgmt := management.New(backend, log, m, auditbus.New())
	ctx := context.Background()

	fn, err := mgmt.RegisterFunction(ctx, "alice", model.Function{Name: "echo", ExecutorType: model.ExecutorBuiltin})
	require.NoError(t, err)
	task, err := mgmt.CreateTask(ctx, "alice", fn.FunctionID, nil, nil, nil)
	require.NoError(t, err)
	_, err = mgmt.AssignData(ctx, task.TaskID, nil, nil, nil)
	require.NoError(t, err)
	_, err = mgmt.InvokeTask(ctx, task.TaskID, "alice")
	require.NoError(t, err)

	sched := scheduler.New(backend, mgmt, log, m, time.Minute, time.Minute)
	srv := httptest.NewServer(NewSchedulerMeshRouter(sched))
	defer srv.Close()

	remote := NewRemoteScheduler(srv.URL, nil)
	staged, err := remote.PullTask(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, task.TaskID, staged.TaskID)

	canceled, err := remote.Heartbeat(ctx, "worker-1", task.TaskID)
	require.NoError(t, err)
	assert.False(t, canceled)

	finished, err := remote.UploadResult(ctx, "worker-1", task.TaskID, model.TaskResult{OK: true, Summary: "done"})
	require.NoError(t, err)
	assert.Equal(t, model.TaskFinished, finished.Status)
}
