package rpcapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teaclave-go/platform/internal/management"
	"github.com/teaclave-go/platform/internal/model"
	"github.com/teaclave-go/platform/internal/taclerr"
)

// NewManagementMeshRouter exposes a management.Client over HTTP for the
// scheduler and frontend processes when they run separately from
// management. One route per method, JSON request/response bodies, the same
// shape as the storage mesh router.
func NewManagementMeshRouter(mgmt management.Client) *chi.Mux {
	r := chi.NewRouter()

	r.Post("/internal/v1/management/functions", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			Owner    string         `json:"owner"`
			Function model.Function `json:"function"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return mgmt.RegisterFunction(req.Context(), body.Owner, body.Function)
	}))
	r.Get("/internal/v1/management/functions/{id}", jsonHandler(func(req *http.Request) (any, error) {
		return mgmt.GetFunction(req.Context(), chi.URLParam(req, "id"))
	}))

	r.Post("/internal/v1/management/input-files", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			Owner       string             `json:"owner"`
			URL         string             `json:"url"`
			ContentHash string             `json:"content_hash"`
			Scheme      model.CryptoScheme `json:"scheme"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return mgmt.RegisterInputFile(req.Context(), body.Owner, body.URL, body.ContentHash, body.Scheme)
	}))
	r.Get("/internal/v1/management/input-files/{id}", jsonHandler(func(req *http.Request) (any, error) {
		return mgmt.GetInputFile(req.Context(), chi.URLParam(req, "id"))
	}))

	r.Post("/internal/v1/management/output-files", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			Owner  string             `json:"owner"`
			URL    string             `json:"url"`
			Scheme model.CryptoScheme `json:"scheme"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return mgmt.RegisterOutputFile(req.Context(), body.Owner, body.URL, body.Scheme)
	}))
	r.Get("/internal/v1/management/output-files/{id}", jsonHandler(func(req *http.Request) (any, error) {
		return mgmt.GetOutputFile(req.Context(), chi.URLParam(req, "id"))
	}))

	r.Post("/internal/v1/management/fusion-outputs", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			URL      string   `json:"url"`
			OwnerSet []string `json:"owner_set"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return mgmt.RegisterFusionOutput(req.Context(), body.URL, body.OwnerSet)
	}))
	r.Get("/internal/v1/management/fusion-outputs/{id}", jsonHandler(func(req *http.Request) (any, error) {
		return mgmt.GetFusionData(req.Context(), chi.URLParam(req, "id"))
	}))

	r.Post("/internal/v1/management/input-files-from-output", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			Owner        string `json:"owner"`
			OutputFileID string `json:"output_file_id"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return mgmt.RegisterInputFromOutput(req.Context(), body.Owner, body.OutputFileID)
	}))

	r.Post("/internal/v1/management/tasks", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			Creator     string                 `json:"creator"`
			FunctionID  string                 `json:"function_id"`
			InputSlots  []model.FileDescriptor `json:"input_slots"`
			OutputSlots []model.FileDescriptor `json:"output_slots"`
			Args        map[string]string      `json:"args"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return mgmt.CreateTask(req.Context(), body.Creator, body.FunctionID, body.InputSlots, body.OutputSlots, body.Args)
	}))
	r.Get("/internal/v1/management/tasks/{id}", jsonHandler(func(req *http.Request) (any, error) {
		return mgmt.GetTask(req.Context(), chi.URLParam(req, "id"))
	}))
	r.Post("/internal/v1/management/tasks/{id}/assign-data", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			InputMap   map[string]string `json:"input_map"`
			OutputMap  map[string]string `json:"output_map"`
			FileOwners map[string]string `json:"file_owners"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return mgmt.AssignData(req.Context(), chi.URLParam(req, "id"), body.InputMap, body.OutputMap, body.FileOwners)
	}))
	r.Post("/internal/v1/management/tasks/{id}/approve", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			Subject string `json:"subject"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return mgmt.ApproveTask(req.Context(), chi.URLParam(req, "id"), body.Subject)
	}))
	r.Post("/internal/v1/management/tasks/{id}/invoke", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			Subject string `json:"subject"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return mgmt.InvokeTask(req.Context(), chi.URLParam(req, "id"), body.Subject)
	}))
	r.Post("/internal/v1/management/tasks/{id}/cancel", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			Subject string `json:"subject"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return mgmt.CancelTask(req.Context(), chi.URLParam(req, "id"), body.Subject)
	}))
	r.Post("/internal/v1/management/tasks/{id}/transition-running", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			WorkerID string `json:"worker_id"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return mgmt.TransitionToRunning(req.Context(), chi.URLParam(req, "id"), body.WorkerID)
	}))
	r.Post("/internal/v1/management/tasks/{id}/finish", jsonHandler(func(req *http.Request) (any, error) {
		var body struct {
			Result model.TaskResult `json:"result"`
		}
		if err := decodeBody(req, &body); err != nil {
			return nil, err
		}
		return mgmt.FinishTask(req.Context(), chi.URLParam(req, "id"), body.Result)
	}))

	return r
}

// jsonHandler adapts a (request) (any, error) function into an http.HandlerFunc
// using the same error translation as the storage mesh.
func jsonHandler(fn func(req *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		result, err := fn(req)
		writeJSON(w, err, result)
	}
}

func decodeBody(req *http.Request, out any) error {
	if req.Body == nil || req.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(req.Body).Decode(out); err != nil {
		return taclerr.InvalidArgument("body", err.Error())
	}
	return nil
}
