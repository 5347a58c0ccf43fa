package management

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teaclave-go/platform/internal/auditbus"
	"github.com/teaclave-go/platform/internal/metrics"
	"github.com/teaclave-go/platform/internal/model"
	"github.com/teaclave-go/platform/internal/obslog"
	"github.com/teaclave-go/platform/internal/storage"
	"github.com/teaclave-go/platform/internal/taclerr"
)

func newTestService() *Service {
	backend := storage.NewMemoryBackend()
	log := obslog.New("management-test", "error", "text")
	return New(backend, log, metrics.NewUnregistered(), auditbus.New())
}

func TestSinglePartyTaskAutoApprovesOnInvoke(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	fn, err := s.RegisterFunction(ctx, "alice", model.Function{Name: "echo", ExecutorType: model.ExecutorBuiltin})
	require.NoError(t, err)

	in, err := s.RegisterInputFile(ctx, "alice", "file:///a.txt", "deadbeef", model.CryptoAesGcm128)
	require.NoError(t, err)
	out, err := s.RegisterOutputFile(ctx, "alice", "file:///a.out", model.CryptoAesGcm128)
	require.NoError(t, err)

	task, err := s.CreateTask(ctx, "alice", fn.FunctionID, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCreated, task.Status)

	task, err = s.AssignData(ctx, task.TaskID,
		map[string]string{"in": in.FileID},
		map[string]string{"out": out.FileID},
		map[string]string{"in": "alice", "out": "alice"},
	)
	require.NoError(t, err)
	assert.Equal(t, model.TaskDataAssigned, task.Status)
	assert.Equal(t, []string{"alice"}, task.Participants)

	task, err = s.InvokeTask(ctx, task.TaskID, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStaged, task.Status)

	staged, err := getJSON[model.StagedTask](ctx, s.backend, storage.PrefixStagedTask+task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, "file:///a.txt", staged.InputData["in"].URL)
	assert.Equal(t, "file:///a.out", staged.OutputData["out"].URL)

	_, ok, err := s.backend.Dequeue(ctx, storage.QueueStagedTasks)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInvokeTaskIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	fn, _ := s.RegisterFunction(ctx, "alice", model.Function{Name: "echo", ExecutorType: model.ExecutorBuiltin})
	task, _ := s.CreateTask(ctx, "alice", fn.FunctionID, nil, nil, nil)
	task, err := s.AssignData(ctx, task.TaskID, nil, nil, nil)
	require.NoError(t, err)

	task, err = s.InvokeTask(ctx, task.TaskID, "alice")
	require.NoError(t, err)
	require.Equal(t, model.TaskStaged, task.Status)

	again, err := s.InvokeTask(ctx, task.TaskID, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStaged, again.Status)

	_, ok, _ := s.backend.Dequeue(ctx, storage.QueueStagedTasks)
	assert.True(t, ok)
	_, ok, _ = s.backend.Dequeue(ctx, storage.QueueStagedTasks)
	assert.False(t, ok, "idempotent InvokeTask must not enqueue twice")
}

func TestTwoPartyTaskRequiresBothApprovals(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	fn, _ := s.RegisterFunction(ctx, "alice", model.Function{Name: "psi", ExecutorType: model.ExecutorBuiltin})
	inA, _ := s.RegisterInputFile(ctx, "alice", "file:///a", "h1", model.CryptoAesGcm128)
	inB, _ := s.RegisterInputFile(ctx, "bob", "file:///b", "h2", model.CryptoAesGcm128)
	out, _ := s.RegisterOutputFile(ctx, "alice", "file:///out", model.CryptoAesGcm128)

	task, _ := s.CreateTask(ctx, "alice", fn.FunctionID, nil, nil, nil)
	task, err := s.AssignData(ctx, task.TaskID,
		map[string]string{"a": inA.FileID, "b": inB.FileID},
		map[string]string{"out": out.FileID},
		map[string]string{"a": "alice", "b": "bob", "out": "alice"},
	)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, task.Participants)

	_, err = s.InvokeTask(ctx, task.TaskID, "alice")
	require.NoError(t, err)
	got, err := s.GetTask(ctx, task.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskDataAssigned, got.Status, "must not stage without every participant's approval")

	task, err = s.ApproveTask(ctx, task.TaskID, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.TaskDataAssigned, task.Status)

	task, err = s.ApproveTask(ctx, task.TaskID, "bob")
	require.NoError(t, err)
	assert.Equal(t, model.TaskApproved, task.Status)

	task, err = s.InvokeTask(ctx, task.TaskID, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStaged, task.Status)
}

func TestAssignDataRejectsFusionOutputWhenOwnerSetDoesNotMatchParticipants(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	fn, err := s.RegisterFunction(ctx, "alice", model.Function{Name: "echo", ExecutorType: model.ExecutorBuiltin})
	require.NoError(t, err)
	fused, err := s.RegisterFusionOutput(ctx, "file:///fused.out", []string{"alice", "bob"})
	require.NoError(t, err)

	task, err := s.CreateTask(ctx, "alice", fn.FunctionID, nil, nil, nil)
	require.NoError(t, err)

	// Only alice is a participant so far; bob is in the fusion output's
	// owner_set but never assigned any input, so the assignment must deny.
	_, err = s.AssignData(ctx, task.TaskID, nil,
		map[string]string{"out": fused.FileID},
		map[string]string{"out": "alice"},
	)
	assert.Equal(t, taclerr.CategoryPermissionDenied, taclerr.Classify(err))

	// Once bob is also a participant (via an input he owns), the owner_set
	// matches the participant set exactly and the assignment succeeds.
	in, err := s.RegisterInputFile(ctx, "bob", "file:///bob.in", "hash", model.CryptoAesGcm128)
	require.NoError(t, err)
	task, err = s.AssignData(ctx, task.TaskID,
		map[string]string{"in": in.FileID},
		map[string]string{"out": fused.FileID},
		map[string]string{"in": "bob", "out": "alice"},
	)
	require.NoError(t, err)
	assert.Equal(t, model.TaskDataAssigned, task.Status)
}

func TestReassignDifferentDataConflicts(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	fn, _ := s.RegisterFunction(ctx, "alice", model.Function{Name: "echo", ExecutorType: model.ExecutorBuiltin})
	in1, _ := s.RegisterInputFile(ctx, "alice", "file:///1", "h1", model.CryptoAesGcm128)
	in2, _ := s.RegisterInputFile(ctx, "alice", "file:///2", "h2", model.CryptoAesGcm128)

	task, _ := s.CreateTask(ctx, "alice", fn.FunctionID, nil, nil, nil)
	_, err := s.AssignData(ctx, task.TaskID, map[string]string{"in": in1.FileID}, nil, map[string]string{"in": "alice"})
	require.NoError(t, err)

	_, err = s.AssignData(ctx, task.TaskID, map[string]string{"in": in1.FileID}, nil, map[string]string{"in": "alice"})
	assert.NoError(t, err, "identical re-assignment must be idempotent")

	_, err = s.AssignData(ctx, task.TaskID, map[string]string{"in": in2.FileID}, nil, map[string]string{"in": "alice"})
	assert.Equal(t, taclerr.CategoryConflict, taclerr.Classify(err))
}

func TestCancelTaskIsIdempotentAndTerminal(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	fn, _ := s.RegisterFunction(ctx, "alice", model.Function{Name: "echo", ExecutorType: model.ExecutorBuiltin})
	task, _ := s.CreateTask(ctx, "alice", fn.FunctionID, nil, nil, nil)

	task, err := s.CancelTask(ctx, task.TaskID, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.TaskCanceled, task.Status)

	again, err := s.CancelTask(ctx, task.TaskID, "alice")
	require.NoError(t, err)
	assert.Equal(t, model.TaskCanceled, again.Status)

	_, err = s.InvokeTask(ctx, task.TaskID, "alice")
	require.NoError(t, err) // idempotent: InvokeTask on a terminal task is a no-op returning current status
}

func TestRegisterInputFromOutputRequiresWrittenOutput(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	out, _ := s.RegisterOutputFile(ctx, "alice", "file:///out", model.CryptoAesGcm128)

	_, err := s.RegisterInputFromOutput(ctx, "bob", out.FileID)
	assert.Equal(t, taclerr.CategoryInvalidArgument, taclerr.Classify(err))
}

func TestReconcilerReenqueuesOrphanedStagedTask(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	fn, _ := s.RegisterFunction(ctx, "alice", model.Function{Name: "echo", ExecutorType: model.ExecutorBuiltin})
	task, _ := s.CreateTask(ctx, "alice", fn.FunctionID, nil, nil, nil)
	task, _ = s.AssignData(ctx, task.TaskID, nil, nil, nil)
	task, err := s.InvokeTask(ctx, task.TaskID, "alice")
	require.NoError(t, err)
	require.Equal(t, model.TaskStaged, task.Status)

	// simulate the crash-between-persist-and-enqueue window
	_, ok, err := s.backend.Dequeue(ctx, storage.QueueStagedTasks)
	require.NoError(t, err)
	require.True(t, ok)

	rec := NewReconciler(s.backend, s)
	n, err := rec.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok, err = s.backend.Dequeue(ctx, storage.QueueStagedTasks)
	require.NoError(t, err)
	assert.True(t, ok)
}
