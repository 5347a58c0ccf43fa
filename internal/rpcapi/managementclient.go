package rpcapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/teaclave-go/platform/internal/management"
	"github.com/teaclave-go/platform/internal/model"
	"github.com/teaclave-go/platform/internal/taclerr"
)

// RemoteManagement implements management.Client against a management mesh
// router (managementmesh.go) over HTTP, the out-of-process counterpart to
// wiring the frontend or scheduler directly against an in-process
// *management.Service.
type RemoteManagement struct {
	baseURL string
	client  *http.Client
}

// NewRemoteManagement builds a RemoteManagement against baseURL (the
// management service's internal_endpoints.management.advertised_address).
func NewRemoteManagement(baseURL string, client *http.Client) *RemoteManagement {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteManagement{baseURL: baseURL, client: client}
}

func (r *RemoteManagement) do(ctx context.Context, method, path string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return taclerr.Internal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return taclerr.Internal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return taclerr.Storage("management-mesh", err)
	}
	return decodeOrError(resp, out)
}

func meshPath(base string, id string, suffix string) string {
	p := base + "/" + url.PathEscape(id)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

func (r *RemoteManagement) RegisterFunction(ctx context.Context, owner string, f model.Function) (model.Function, error) {
	var out model.Function
	err := r.do(ctx, http.MethodPost, "/internal/v1/management/functions", map[string]any{"owner": owner, "function": f}, &out)
	return out, err
}

func (r *RemoteManagement) GetFunction(ctx context.Context, functionID string) (model.Function, error) {
	var out model.Function
	err := r.do(ctx, http.MethodGet, meshPath("/internal/v1/management/functions", functionID, ""), nil, &out)
	return out, err
}

func (r *RemoteManagement) RegisterInputFile(ctx context.Context, owner, url string, contentHash string, scheme model.CryptoScheme) (model.InputFile, error) {
	var out model.InputFile
	err := r.do(ctx, http.MethodPost, "/internal/v1/management/input-files", map[string]any{
		"owner": owner, "url": url, "content_hash": contentHash, "scheme": scheme,
	}, &out)
	return out, err
}

func (r *RemoteManagement) GetInputFile(ctx context.Context, fileID string) (model.InputFile, error) {
	var out model.InputFile
	err := r.do(ctx, http.MethodGet, meshPath("/internal/v1/management/input-files", fileID, ""), nil, &out)
	return out, err
}

func (r *RemoteManagement) RegisterOutputFile(ctx context.Context, owner, url string, scheme model.CryptoScheme) (model.OutputFile, error) {
	var out model.OutputFile
	err := r.do(ctx, http.MethodPost, "/internal/v1/management/output-files", map[string]any{
		"owner": owner, "url": url, "scheme": scheme,
	}, &out)
	return out, err
}

func (r *RemoteManagement) GetOutputFile(ctx context.Context, fileID string) (model.OutputFile, error) {
	var out model.OutputFile
	err := r.do(ctx, http.MethodGet, meshPath("/internal/v1/management/output-files", fileID, ""), nil, &out)
	return out, err
}

func (r *RemoteManagement) RegisterFusionOutput(ctx context.Context, url string, ownerSet []string) (model.FusionData, error) {
	var out model.FusionData
	err := r.do(ctx, http.MethodPost, "/internal/v1/management/fusion-outputs", map[string]any{
		"url": url, "owner_set": ownerSet,
	}, &out)
	return out, err
}

func (r *RemoteManagement) GetFusionData(ctx context.Context, fileID string) (model.FusionData, error) {
	var out model.FusionData
	err := r.do(ctx, http.MethodGet, meshPath("/internal/v1/management/fusion-outputs", fileID, ""), nil, &out)
	return out, err
}

func (r *RemoteManagement) RegisterInputFromOutput(ctx context.Context, owner, outputFileID string) (model.InputFile, error) {
	var out model.InputFile
	err := r.do(ctx, http.MethodPost, "/internal/v1/management/input-files-from-output", map[string]any{
		"owner": owner, "output_file_id": outputFileID,
	}, &out)
	return out, err
}

func (r *RemoteManagement) CreateTask(ctx context.Context, creator, functionID string, inputSlots, outputSlots []model.FileDescriptor, args map[string]string) (model.Task, error) {
	var out model.Task
	err := r.do(ctx, http.MethodPost, "/internal/v1/management/tasks", map[string]any{
		"creator": creator, "function_id": functionID, "input_slots": inputSlots, "output_slots": outputSlots, "args": args,
	}, &out)
	return out, err
}

func (r *RemoteManagement) GetTask(ctx context.Context, taskID string) (model.Task, error) {
	var out model.Task
	err := r.do(ctx, http.MethodGet, meshPath("/internal/v1/management/tasks", taskID, ""), nil, &out)
	return out, err
}

func (r *RemoteManagement) AssignData(ctx context.Context, taskID string, inputMap, outputMap map[string]string, fileOwners map[string]string) (model.Task, error) {
	var out model.Task
	err := r.do(ctx, http.MethodPost, meshPath("/internal/v1/management/tasks", taskID, "assign-data"), map[string]any{
		"input_map": inputMap, "output_map": outputMap, "file_owners": fileOwners,
	}, &out)
	return out, err
}

func (r *RemoteManagement) ApproveTask(ctx context.Context, taskID, subject string) (model.Task, error) {
	var out model.Task
	err := r.do(ctx, http.MethodPost, meshPath("/internal/v1/management/tasks", taskID, "approve"), map[string]any{"subject": subject}, &out)
	return out, err
}

func (r *RemoteManagement) InvokeTask(ctx context.Context, taskID, subject string) (model.Task, error) {
	var out model.Task
	err := r.do(ctx, http.MethodPost, meshPath("/internal/v1/management/tasks", taskID, "invoke"), map[string]any{"subject": subject}, &out)
	return out, err
}

func (r *RemoteManagement) CancelTask(ctx context.Context, taskID, subject string) (model.Task, error) {
	var out model.Task
	err := r.do(ctx, http.MethodPost, meshPath("/internal/v1/management/tasks", taskID, "cancel"), map[string]any{"subject": subject}, &out)
	return out, err
}

func (r *RemoteManagement) TransitionToRunning(ctx context.Context, taskID, workerID string) (model.Task, error) {
	var out model.Task
	err := r.do(ctx, http.MethodPost, meshPath("/internal/v1/management/tasks", taskID, "transition-running"), map[string]any{"worker_id": workerID}, &out)
	return out, err
}

func (r *RemoteManagement) FinishTask(ctx context.Context, taskID string, result model.TaskResult) (model.Task, error) {
	var out model.Task
	err := r.do(ctx, http.MethodPost, meshPath("/internal/v1/management/tasks", taskID, "finish"), map[string]any{"result": result}, &out)
	return out, err
}

var _ management.Client = (*RemoteManagement)(nil)
