package rpcapi

import (
	"context"

	"github.com/teaclave-go/platform/internal/accesscontrol"
	"github.com/teaclave-go/platform/internal/management"
	"github.com/teaclave-go/platform/internal/model"
	"github.com/teaclave-go/platform/internal/obslog"
	"github.com/teaclave-go/platform/internal/taclerr"
)

// Frontend implements spec §6.5's user-facing RPC surface as a set of
// HTTP{Method}{Path} handlers, following the teacher's naming convention
// from system/framework/core/api.go. Every mutating/reading handler below
// re-derives its access decision from accesscontrol before calling into
// management, keeping the two layers as separate as spec §4.2 requires:
// management itself performs no authorization.
type Frontend struct {
	mgmt management.Client
	auth *Authenticator
	log  *obslog.Logger
}

// NewFrontend builds a Frontend over a management Service and Authenticator.
func NewFrontend(mgmt management.Client, auth *Authenticator, log *obslog.Logger) *Frontend {
	return &Frontend{mgmt: mgmt, auth: auth, log: log}
}

// HTTPPostLogin implements UserLogin: POST /v1/login.
func (f *Frontend) HTTPPostLogin(ctx context.Context, req APIRequest) (any, error) {
	userID, _ := bodyString(req.Body, "user_id")
	password, _ := bodyString(req.Body, "password")
	token, err := f.auth.Login(ctx, userID, password)
	if err != nil {
		return nil, err
	}
	return map[string]string{"token": token}, nil
}

// HTTPPostRegister implements UserRegister: POST /v1/register.
func (f *Frontend) HTTPPostRegister(ctx context.Context, req APIRequest) (any, error) {
	userID, _ := bodyString(req.Body, "user_id")
	password, _ := bodyString(req.Body, "password")
	role, _ := bodyString(req.Body, "role")
	user, err := f.auth.Register(ctx, userID, password, model.Role(role))
	if err != nil {
		return nil, err
	}
	return user, nil
}

// HTTPPostFunctions implements RegisterFunction: POST /v1/functions.
func (f *Frontend) HTTPPostFunctions(ctx context.Context, req APIRequest) (any, error) {
	if accesscontrol.CanRegisterFunction(req.Role) == accesscontrol.Deny {
		return nil, taclerr.PermissionDenied("RegisterFunction", "")
	}
	name, _ := bodyString(req.Body, "name")
	executorType, _ := bodyString(req.Body, "executor_type")
	public, _ := req.Body["public"].(bool)
	fn := model.Function{
		Name:         name,
		ExecutorType: model.ExecutorType(executorType),
		Public:       public,
		Inputs:       descriptorsToModel(bodyFileDescriptors(req.Body, "inputs")),
		Outputs:      descriptorsToModel(bodyFileDescriptors(req.Body, "outputs")),
	}
	return f.mgmt.RegisterFunction(ctx, req.UserID, fn)
}

// HTTPGetFunctionsById implements GetFunction: GET /v1/functions/{id}.
func (f *Frontend) HTTPGetFunctionsById(ctx context.Context, req APIRequest) (any, error) {
	fn, err := f.mgmt.GetFunction(ctx, req.PathParams["id"])
	if err != nil {
		return nil, err
	}
	if accesscontrol.CanGetFunction(req.UserID, req.Role, accesscontrol.FunctionRef{FunctionID: fn.FunctionID, Owner: fn.Owner, Public: fn.Public}) == accesscontrol.Deny {
		return nil, taclerr.PermissionDenied("GetFunction", fn.FunctionID)
	}
	return fn, nil
}

// HTTPPostInputFiles implements RegisterInputFile: POST /v1/input-files.
func (f *Frontend) HTTPPostInputFiles(ctx context.Context, req APIRequest) (any, error) {
	if accesscontrol.CanRegisterInputFile(req.UserID) == accesscontrol.Deny {
		return nil, taclerr.PermissionDenied("RegisterInputFile", "")
	}
	url, _ := bodyString(req.Body, "url")
	contentHash, _ := bodyString(req.Body, "content_hash")
	scheme, _ := bodyString(req.Body, "crypto_scheme")
	return f.mgmt.RegisterInputFile(ctx, req.UserID, url, contentHash, model.CryptoScheme(scheme))
}

// HTTPGetInputFilesById implements GetInputFile: GET /v1/input-files/{id}.
func (f *Frontend) HTTPGetInputFilesById(ctx context.Context, req APIRequest) (any, error) {
	file, err := f.mgmt.GetInputFile(ctx, req.PathParams["id"])
	if err != nil {
		return nil, err
	}
	if accesscontrol.CanGetInputFile(req.UserID, accesscontrol.InputFileRef{FileID: file.FileID, Owner: file.Owner}) == accesscontrol.Deny {
		return nil, taclerr.PermissionDenied("GetInputFile", file.FileID)
	}
	return file, nil
}

// HTTPPostOutputFiles implements RegisterOutputFile: POST /v1/output-files.
func (f *Frontend) HTTPPostOutputFiles(ctx context.Context, req APIRequest) (any, error) {
	url, _ := bodyString(req.Body, "url")
	scheme, _ := bodyString(req.Body, "crypto_scheme")
	return f.mgmt.RegisterOutputFile(ctx, req.UserID, url, model.CryptoScheme(scheme))
}

// HTTPGetOutputFilesById implements GetOutputFile: GET /v1/output-files/{id}.
func (f *Frontend) HTTPGetOutputFilesById(ctx context.Context, req APIRequest) (any, error) {
	file, err := f.mgmt.GetOutputFile(ctx, req.PathParams["id"])
	if err != nil {
		return nil, err
	}
	if accesscontrol.CanGetOutputFile(req.UserID, accesscontrol.OutputFileRef{FileID: file.FileID, Owner: file.Owner}) == accesscontrol.Deny {
		return nil, taclerr.PermissionDenied("GetOutputFile", file.FileID)
	}
	return file, nil
}

// HTTPPostFusionOutputs implements RegisterFusionOutput: POST /v1/fusion-outputs.
func (f *Frontend) HTTPPostFusionOutputs(ctx context.Context, req APIRequest) (any, error) {
	url, _ := bodyString(req.Body, "url")
	ownerSet := bodyStringSlice(req.Body, "owner_set")
	return f.mgmt.RegisterFusionOutput(ctx, url, ownerSet)
}

// HTTPPostInputFilesFromOutput implements RegisterInputFromOutput:
// POST /v1/input-files/from-output.
func (f *Frontend) HTTPPostInputFilesFromOutput(ctx context.Context, req APIRequest) (any, error) {
	outputFileID, _ := bodyString(req.Body, "output_file_id")
	return f.mgmt.RegisterInputFromOutput(ctx, req.UserID, outputFileID)
}

// HTTPPostTasks implements CreateTask: POST /v1/tasks.
func (f *Frontend) HTTPPostTasks(ctx context.Context, req APIRequest) (any, error) {
	functionID, _ := bodyString(req.Body, "function_id")
	fn, err := f.mgmt.GetFunction(ctx, functionID)
	if err != nil {
		return nil, err
	}
	if accesscontrol.CanGetFunction(req.UserID, req.Role, accesscontrol.FunctionRef{FunctionID: fn.FunctionID, Owner: fn.Owner, Public: fn.Public}) == accesscontrol.Deny {
		return nil, taclerr.PermissionDenied("CreateTask", functionID)
	}
	inputSlots := descriptorsToModel(bodyFileDescriptors(req.Body, "input_slots"))
	outputSlots := descriptorsToModel(bodyFileDescriptors(req.Body, "output_slots"))
	args := bodyStringMap(req.Body, "arguments")
	return f.mgmt.CreateTask(ctx, req.UserID, functionID, inputSlots, outputSlots, args)
}

// HTTPGetTasksById implements GetTask: GET /v1/tasks/{id}.
func (f *Frontend) HTTPGetTasksById(ctx context.Context, req APIRequest) (any, error) {
	task, err := f.mgmt.GetTask(ctx, req.PathParams["id"])
	if err != nil {
		return nil, err
	}
	if accesscontrol.CanGetTask(req.UserID, taskRef(task)) == accesscontrol.Deny {
		return nil, taclerr.PermissionDenied("GetTask", task.TaskID)
	}
	return task, nil
}

// HTTPPostTasksByIdAssignData implements AssignData: POST /v1/tasks/{id}/assign-data.
func (f *Frontend) HTTPPostTasksByIdAssignData(ctx context.Context, req APIRequest) (any, error) {
	taskID := req.PathParams["id"]
	task, err := f.mgmt.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	inputMap := bodyStringMap(req.Body, "input_map")
	outputMap := bodyStringMap(req.Body, "output_map")
	fileOwners := bodyStringMap(req.Body, "file_owners")

	refs, err := f.assignedOutputRefs(ctx, outputMap)
	if err != nil {
		return nil, err
	}
	participants := participantUnion(task.Creator, fileOwners)
	if accesscontrol.CanAssignData(req.UserID, taskRef(task), refs, participants) == accesscontrol.Deny {
		return nil, taclerr.PermissionDenied("AssignData", taskID)
	}
	return f.mgmt.AssignData(ctx, taskID, inputMap, outputMap, fileOwners)
}

// HTTPPostTasksByIdApprove implements ApproveTask: POST /v1/tasks/{id}/approve.
func (f *Frontend) HTTPPostTasksByIdApprove(ctx context.Context, req APIRequest) (any, error) {
	taskID := req.PathParams["id"]
	task, err := f.mgmt.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if accesscontrol.CanApproveTask(req.UserID, taskRef(task)) == accesscontrol.Deny {
		return nil, taclerr.PermissionDenied("ApproveTask", taskID)
	}
	return f.mgmt.ApproveTask(ctx, taskID, req.UserID)
}

// HTTPPostTasksByIdInvoke implements InvokeTask: POST /v1/tasks/{id}/invoke.
func (f *Frontend) HTTPPostTasksByIdInvoke(ctx context.Context, req APIRequest) (any, error) {
	taskID := req.PathParams["id"]
	task, err := f.mgmt.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if accesscontrol.CanInvokeTask(req.UserID, taskRef(task)) == accesscontrol.Deny {
		return nil, taclerr.PermissionDenied("InvokeTask", taskID)
	}
	return f.mgmt.InvokeTask(ctx, taskID, req.UserID)
}

// HTTPPostTasksByIdCancel implements CancelTask: POST /v1/tasks/{id}/cancel.
func (f *Frontend) HTTPPostTasksByIdCancel(ctx context.Context, req APIRequest) (any, error) {
	taskID := req.PathParams["id"]
	task, err := f.mgmt.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if accesscontrol.CanCancelTask(req.UserID, taskRef(task)) == accesscontrol.Deny {
		return nil, taclerr.PermissionDenied("CancelTask", taskID)
	}
	return f.mgmt.CancelTask(ctx, taskID, req.UserID)
}

// assignedOutputRefs resolves every file named in outputMap to an
// accesscontrol.OutputFileRef, trying OutputFile first then FusionData,
// mirroring management's own resolveOutputView fallback.
func (f *Frontend) assignedOutputRefs(ctx context.Context, outputMap map[string]string) ([]accesscontrol.OutputFileRef, error) {
	refs := make([]accesscontrol.OutputFileRef, 0, len(outputMap))
	for _, fileID := range outputMap {
		if out, err := f.mgmt.GetOutputFile(ctx, fileID); err == nil {
			refs = append(refs, accesscontrol.OutputFileRef{FileID: out.FileID, Owner: out.Owner})
			continue
		}
		fd, err := f.mgmt.GetFusionData(ctx, fileID)
		if err != nil {
			return nil, taclerr.NotFound("output_file", fileID)
		}
		refs = append(refs, accesscontrol.OutputFileRef{FileID: fd.FileID, OwnerSet: fd.OwnerSet})
	}
	return refs, nil
}

func taskRef(t model.Task) accesscontrol.TaskRef {
	return accesscontrol.TaskRef{TaskID: t.TaskID, Creator: t.Creator, Participants: t.Participants, Approvals: t.Approvals}
}

func participantUnion(creator string, fileOwners map[string]string) []string {
	seen := map[string]bool{creator: true}
	out := []string{creator}
	for _, owner := range fileOwners {
		if owner == "" || seen[owner] {
			continue
		}
		seen[owner] = true
		out = append(out, owner)
	}
	return out
}

func descriptorsToModel(in []fileDescriptorJSON) []model.FileDescriptor {
	if in == nil {
		return nil
	}
	out := make([]model.FileDescriptor, len(in))
	for i, d := range in {
		out[i] = model.FileDescriptor{Name: d.Name, Optional: d.Optional}
	}
	return out
}
