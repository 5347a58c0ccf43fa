package rpcapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/teaclave-go/platform/internal/execution"
	"github.com/teaclave-go/platform/internal/model"
	"github.com/teaclave-go/platform/internal/taclerr"
)

// RemoteScheduler implements execution.SchedulerClient against a scheduler
// mesh router (schedulermesh.go) over HTTP, the out-of-process counterpart
// to wiring a worker directly against an in-process *scheduler.Scheduler.
type RemoteScheduler struct {
	baseURL string
	client  *http.Client
}

// NewRemoteScheduler builds a RemoteScheduler against baseURL (the
// scheduler service's internal_endpoints.scheduler.advertised_address).
func NewRemoteScheduler(baseURL string, client *http.Client) *RemoteScheduler {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteScheduler{baseURL: baseURL, client: client}
}

func (r *RemoteScheduler) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return taclerr.Internal(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return taclerr.Internal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return taclerr.Scheduling(err.Error())
	}
	return decodeOrError(resp, out)
}

func (r *RemoteScheduler) PullTask(ctx context.Context, workerID string) (model.StagedTask, error) {
	var staged model.StagedTask
	err := r.post(ctx, "/internal/v1/scheduler/pull", map[string]string{"worker_id": workerID}, &staged)
	return staged, err
}

func (r *RemoteScheduler) Heartbeat(ctx context.Context, workerID, taskID string) (bool, error) {
	var resp struct {
		Canceled bool `json:"canceled"`
	}
	err := r.post(ctx, "/internal/v1/scheduler/heartbeat", map[string]string{
		"worker_id": workerID, "task_id": taskID,
	}, &resp)
	return resp.Canceled, err
}

func (r *RemoteScheduler) UploadResult(ctx context.Context, workerID, taskID string, result model.TaskResult) (model.Task, error) {
	var task model.Task
	err := r.post(ctx, "/internal/v1/scheduler/upload-result", map[string]any{
		"worker_id": workerID, "task_id": taskID, "result": result,
	}, &task)
	return task, err
}

var _ execution.SchedulerClient = (*RemoteScheduler)(nil)
