package scheduler

import (
	"context"
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
	"github.com/teaclave-go/platform/internal/taclerr"
)

func newTestScheduler(t *testing.T, tExec, tReap time.Duration) (*Scheduler, *management.Service, string) {
	backend := storage.NewMemoryBackend()
	log := obslog.New("scheduler-test", "error", "text")
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

	sched := New(backend, mgmt, log, m, tExec, tReap)
	return sched, mgmt, task.TaskID
}

func TestPullTaskAssignsAtMostOnePerWorker(t *testing.T) {
	ctx := context.Background()
	sched, mgmt, taskID := newTestScheduler(t, time.Minute, time.Second)

	staged, err := sched.PullTask(ctx, "worker-1")
	require.NoError(t, err)
	assert.Equal(t, taskID, staged.TaskID)

	task, err := mgmt.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskRunning, task.Status)

	_, err = sched.PullTask(ctx, "worker-1")
	assert.Equal(t, taclerr.CategoryScheduling, taclerr.Classify(err))

	_, err = sched.PullTask(ctx, "worker-2")
	assert.Equal(t, taclerr.CategoryScheduling, taclerr.Classify(err), "queue should be empty after the first pull")
}

func TestHeartbeatRejectsWrongAssignment(t *testing.T) {
	ctx := context.Background()
	sched, _, _ := newTestScheduler(t, time.Minute, time.Second)
	staged, err := sched.PullTask(ctx, "worker-1")
	require.NoError(t, err)

	canceled, err := sched.Heartbeat(ctx, "worker-1", staged.TaskID)
	assert.NoError(t, err)
	assert.False(t, canceled)
	_, err = sched.Heartbeat(ctx, "worker-1", "wrong-task")
	assert.Error(t, err)
	_, err = sched.Heartbeat(ctx, "worker-2", staged.TaskID)
	assert.Error(t, err)
}

func TestHeartbeatReportsCancellationOfRunningTask(t *testing.T) {
	ctx := context.Background()
	sched, mgmt, taskID := newTestScheduler(t, time.Minute, time.Second)
	staged, err := sched.PullTask(ctx, "worker-1")
	require.NoError(t, err)

	canceled, err := sched.Heartbeat(ctx, "worker-1", staged.TaskID)
	require.NoError(t, err)
	assert.False(t, canceled, "not canceled yet")

	task, err := mgmt.CancelTask(ctx, taskID, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.TaskRunning, task.Status, "a running task stays Running until the worker reports back")
	assert.True(t, task.Canceled)

	canceled, err = sched.Heartbeat(ctx, "worker-1", staged.TaskID)
	require.NoError(t, err)
	assert.True(t, canceled, "heartbeat must surface the cancellation flag")

	finished, err := sched.UploadResult(ctx, "worker-1", staged.TaskID, model.TaskResult{OK: false, FailureReason: "canceled"})
	require.NoError(t, err)
	assert.Equal(t, model.TaskCanceled, finished.Status, "FinishTask must honor the Canceled flag over the result's OK field")
}

func TestUploadResultFinishesTask(t *testing.T) {
	ctx := context.Background()
	sched, mgmt, taskID := newTestScheduler(t, time.Minute, time.Second)
	staged, err := sched.PullTask(ctx, "worker-1")
	require.NoError(t, err)

	task, err := sched.UploadResult(ctx, "worker-1", staged.TaskID, model.TaskResult{OK: true, Summary: "done"})
	require.NoError(t, err)
	assert.Equal(t, model.TaskFinished, task.Status)

	_, err = mgmt.GetTask(ctx, taskID)
	require.NoError(t, err)

	_, err = sched.Heartbeat(ctx, "worker-1", staged.TaskID)
	assert.Error(t, err, "assignment must be cleared after upload")
}

func TestReapFailsTimedOutTaskWithoutRedispatch(t *testing.T) {
	ctx := context.Background()
	sched, mgmt, taskID := newTestScheduler(t, -time.Second, time.Second) // already-expired deadline
	_, err := sched.PullTask(ctx, "worker-1")
	require.NoError(t, err)

	reclaimed := sched.Reap(ctx)
	assert.Equal(t, 1, reclaimed)

	task, err := mgmt.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskFailed, task.Status)
	assert.Equal(t, "WorkerTimeout", task.Result.FailureReason)

	// no redispatch: the queue must remain empty
	_, ok, err := sched.backend.Dequeue(ctx, storage.QueueStagedTasks)
	require.NoError(t, err)
	assert.False(t, ok)
}
