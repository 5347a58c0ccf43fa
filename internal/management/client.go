package management

import (
	"context"

	"github.com/teaclave-go/platform/internal/model"
)

// Client is the subset of Service every other core service calls, defined
// here so the frontend and scheduler can depend on either an in-process
// *Service or a mesh-backed remote implementation without a direct import
// of whichever is running out-of-process. Mirrors execution.SchedulerClient.
type Client interface {
	RegisterFunction(ctx context.Context, owner string, f model.Function) (model.Function, error)
	GetFunction(ctx context.Context, functionID string) (model.Function, error)

	RegisterInputFile(ctx context.Context, owner, url, contentHash string, scheme model.CryptoScheme) (model.InputFile, error)
	GetInputFile(ctx context.Context, fileID string) (model.InputFile, error)
	RegisterOutputFile(ctx context.Context, owner, url string, scheme model.CryptoScheme) (model.OutputFile, error)
	GetOutputFile(ctx context.Context, fileID string) (model.OutputFile, error)
	RegisterFusionOutput(ctx context.Context, url string, ownerSet []string) (model.FusionData, error)
	GetFusionData(ctx context.Context, fileID string) (model.FusionData, error)
	RegisterInputFromOutput(ctx context.Context, owner, outputFileID string) (model.InputFile, error)

	CreateTask(ctx context.Context, creator, functionID string, inputSlots, outputSlots []model.FileDescriptor, args map[string]string) (model.Task, error)
	GetTask(ctx context.Context, taskID string) (model.Task, error)
	AssignData(ctx context.Context, taskID string, inputMap, outputMap map[string]string, fileOwners map[string]string) (model.Task, error)
	ApproveTask(ctx context.Context, taskID, subject string) (model.Task, error)
	InvokeTask(ctx context.Context, taskID, subject string) (model.Task, error)
	CancelTask(ctx context.Context, taskID, subject string) (model.Task, error)

	TransitionToRunning(ctx context.Context, taskID, workerID string) (model.Task, error)
	FinishTask(ctx context.Context, taskID string, result model.TaskResult) (model.Task, error)
}

var _ Client = (*Service)(nil)
