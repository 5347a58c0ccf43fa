package rpcapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teaclave-go/platform/internal/model"
	"github.com/teaclave-go/platform/internal/scheduler"
	"github.com/teaclave-go/platform/internal/taclerr"
)

// NewSchedulerMeshRouter exposes the three scheduler operations an
// execution worker needs (spec §4.5's pull loop) over the internal mesh, so
// a worker process can run detached from the scheduler process.
func NewSchedulerMeshRouter(sched *scheduler.Scheduler) *chi.Mux {
	r := chi.NewRouter()

	r.Post("/internal/v1/scheduler/pull", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			WorkerID string `json:"worker_id"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, taclerr.InvalidArgument("body", err.Error()), nil)
			return
		}
		staged, err := sched.PullTask(req.Context(), body.WorkerID)
		writeJSON(w, err, staged)
	})
	r.Post("/internal/v1/scheduler/heartbeat", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			WorkerID string `json:"worker_id"`
			TaskID   string `json:"task_id"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, taclerr.InvalidArgument("body", err.Error()), nil)
			return
		}
		canceled, err := sched.Heartbeat(req.Context(), body.WorkerID, body.TaskID)
		writeJSON(w, err, map[string]any{"ok": err == nil, "canceled": canceled})
	})
	r.Post("/internal/v1/scheduler/upload-result", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			WorkerID string           `json:"worker_id"`
			TaskID   string           `json:"task_id"`
			Result   model.TaskResult `json:"result"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, taclerr.InvalidArgument("body", err.Error()), nil)
			return
		}
		task, err := sched.UploadResult(req.Context(), body.WorkerID, body.TaskID, body.Result)
		writeJSON(w, err, task)
	})

	return r
}
