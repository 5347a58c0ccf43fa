package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teaclave-go/platform/internal/execution/executors"
	"github.com/teaclave-go/platform/internal/model"
	"github.com/teaclave-go/platform/internal/obslog"
	"github.com/teaclave-go/platform/internal/taclerr"
	"github.com/teaclave-go/platform/internal/teecrypto"
)

type fakeScheduler struct {
	toPull  []model.StagedTask
	pulled  int
	results []model.TaskResult

	// cancelAfter, when > 0, reports the task canceled starting with the
	// cancelAfter'th Heartbeat call.
	cancelAfter  int
	heartbeats   int
	heartbeatHit chan struct{} // closed right before the canceling heartbeat returns, if set
}

func (f *fakeScheduler) PullTask(ctx context.Context, workerID string) (model.StagedTask, error) {
	if f.pulled >= len(f.toPull) {
		return model.StagedTask{}, taclerr.Scheduling("queue is empty")
	}
	t := f.toPull[f.pulled]
	f.pulled++
	return t, nil
}

func (f *fakeScheduler) Heartbeat(ctx context.Context, workerID, taskID string) (bool, error) {
	f.heartbeats++
	if f.cancelAfter > 0 && f.heartbeats >= f.cancelAfter {
		if f.heartbeatHit != nil {
			close(f.heartbeatHit)
		}
		return true, nil
	}
	return false, nil
}

func (f *fakeScheduler) UploadResult(ctx context.Context, workerID, taskID string, result model.TaskResult) (model.Task, error) {
	f.results = append(f.results, result)
	return model.Task{TaskID: taskID}, nil
}

func TestWorkerRunOnceEmptyQueue(t *testing.T) {
	sched := &fakeScheduler{}
	w := NewWorker("w1", sched, NewFetcher(nil, time.Second), map[string]map[string]Executor{}, obslog.New("worker-test", "error", "text"), time.Millisecond, time.Second)

	ran, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
}

func TestWorkerRunOnceEchoTaskRoundTrips(t *testing.T) {
	staged := model.StagedTask{
		TaskID:       "task-1",
		FunctionName: "echo",
		ExecutorType: model.ExecutorBuiltin,
		Arguments:    map[string]string{"message": "Hello From Teaclave!"},
	}
	sched := &fakeScheduler{toPull: []model.StagedTask{staged}}
	registry := map[string]map[string]Executor{
		string(model.ExecutorBuiltin): executors.Registry(),
	}
	w := NewWorker("w1", sched, NewFetcher(nil, time.Second), registry, obslog.New("worker-test", "error", "text"), time.Millisecond, time.Second)

	ran, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	require.Len(t, sched.results, 1)
	assert.True(t, sched.results[0].OK)
	assert.Equal(t, "Hello From Teaclave!", sched.results[0].Summary)
}

func TestWorkerRunOncePasswordCheckFetchesAndSealsOutput(t *testing.T) {
	info, err := teecrypto.GenerateAesGcm128()
	require.NoError(t, err)
	breached := []byte("aaaa\nbbbb\ncccc\n")
	sealed, err := teecrypto.Encrypt(info, "http://upstream/breached", breached)
	require.NoError(t, err)

	server := newStaticServer(t, map[string][]byte{"/breached": sealed})
	defer server.Close()

	staged := model.StagedTask{
		TaskID:       "task-2",
		FunctionName: "password_check",
		ExecutorType: model.ExecutorBuiltin,
		Arguments:    map[string]string{"candidate_hash": "bbbb"},
		InputData: map[string]model.StagedFileView{
			"breached_hashes": {Name: "breached_hashes", URL: server.URL + "/breached", Crypto: info},
		},
		OutputData: map[string]model.StagedFileView{
			"result": {Name: "result", URL: server.URL + "/result", Crypto: info},
		},
	}
	sched := &fakeScheduler{toPull: []model.StagedTask{staged}}
	registry := map[string]map[string]Executor{
		string(model.ExecutorBuiltin): executors.Registry(),
	}
	w := NewWorker("w1", sched, NewFetcher(nil, time.Second), registry, obslog.New("worker-test", "error", "text"), time.Millisecond, time.Second)

	ran, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	require.Len(t, sched.results, 1)
	assert.True(t, sched.results[0].OK)
	assert.Contains(t, sched.results[0].OutputHashes, "result")
}

func TestWorkerAbortsRunningTaskOnCancellation(t *testing.T) {
	staged := model.StagedTask{
		TaskID:       "task-1",
		FunctionName: "slow",
		ExecutorType: model.ExecutorBuiltin,
	}
	heartbeatHit := make(chan struct{})
	sched := &fakeScheduler{toPull: []model.StagedTask{staged}, cancelAfter: 1, heartbeatHit: heartbeatHit}

	blockUntilDone := make(chan struct{})
	slow := ExecutorFunc(func(ctx context.Context, arguments map[string]string, payload []byte, rt *Runtime) (Result, error) {
		<-ctx.Done()
		close(blockUntilDone)
		return Result{}, ctx.Err()
	})
	registry := map[string]map[string]Executor{
		string(model.ExecutorBuiltin): {"slow": slow},
	}
	// tExec/3 sets the heartbeat interval; keep it tiny so the test doesn't wait long.
	w := NewWorker("w1", sched, NewFetcher(nil, time.Second), registry, obslog.New("worker-test", "error", "text"), time.Millisecond, 30*time.Millisecond)

	ran, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	select {
	case <-blockUntilDone:
	case <-time.After(time.Second):
		t.Fatal("executor was never aborted")
	}

	require.Len(t, sched.results, 1)
	assert.False(t, sched.results[0].OK)
	assert.Equal(t, "canceled", sched.results[0].FailureReason)
}
