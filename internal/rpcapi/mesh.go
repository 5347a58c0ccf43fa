// mesh.go implements the internal service-mesh surface used when the
// Storage Gateway and Scheduler run as separate processes from their
// callers (spec §4's five independently deployable core services). Unlike
// the frontend's gin router, the mesh uses go-chi: a second, smaller HTTP
// framework already in the teacher's dependency set, kept distinct from
// the user-facing router so the two surfaces can evolve (and be firewalled)
// independently, matching spec §6.1's separation of api_endpoints from
// internal_endpoints.
package rpcapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/teaclave-go/platform/internal/storage"
	"github.com/teaclave-go/platform/internal/taclerr"
)

// NewStorageMeshRouter exposes backend's full Backend contract over HTTP
// for out-of-process callers (management, scheduler). Byte values travel
// base64-encoded inside JSON envelopes.
func NewStorageMeshRouter(backend storage.Backend) *chi.Mux {
	r := chi.NewRouter()

	r.Get("/internal/v1/storage/keys", func(w http.ResponseWriter, req *http.Request) {
		prefix := req.URL.Query().Get("prefix")
		keys, err := backend.GetKeysByPrefix(req.Context(), prefix)
		writeJSON(w, err, map[string]any{"keys": keys})
	})
	r.Get("/internal/v1/storage/value", func(w http.ResponseWriter, req *http.Request) {
		key := req.URL.Query().Get("key")
		value, err := backend.Get(req.Context(), key)
		writeJSON(w, err, map[string]any{"value": base64.StdEncoding.EncodeToString(value)})
	})
	r.Put("/internal/v1/storage/value", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, taclerr.InvalidArgument("body", err.Error()), nil)
			return
		}
		value, err := base64.StdEncoding.DecodeString(body.Value)
		if err != nil {
			writeJSON(w, taclerr.InvalidArgument("value", "not valid base64"), nil)
			return
		}
		err = backend.Put(req.Context(), body.Key, value)
		writeJSON(w, err, map[string]any{"ok": err == nil})
	})
	r.Post("/internal/v1/storage/cas", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Key      string  `json:"key"`
			OldValue *string `json:"old_value"`
			NewValue string  `json:"new_value"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, taclerr.InvalidArgument("body", err.Error()), nil)
			return
		}
		newValue, err := base64.StdEncoding.DecodeString(body.NewValue)
		if err != nil {
			writeJSON(w, taclerr.InvalidArgument("new_value", "not valid base64"), nil)
			return
		}
		var oldValue []byte
		if body.OldValue != nil {
			oldValue, err = base64.StdEncoding.DecodeString(*body.OldValue)
			if err != nil {
				writeJSON(w, taclerr.InvalidArgument("old_value", "not valid base64"), nil)
				return
			}
		}
		err = backend.CompareAndSwap(req.Context(), body.Key, oldValue, newValue)
		writeJSON(w, err, map[string]any{"ok": err == nil})
	})
	r.Delete("/internal/v1/storage/value", func(w http.ResponseWriter, req *http.Request) {
		key := req.URL.Query().Get("key")
		err := backend.Delete(req.Context(), key)
		writeJSON(w, err, map[string]any{"ok": err == nil})
	})
	r.Post("/internal/v1/storage/enqueue", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Queue string `json:"queue"`
			Value string `json:"value"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, taclerr.InvalidArgument("body", err.Error()), nil)
			return
		}
		value, err := base64.StdEncoding.DecodeString(body.Value)
		if err != nil {
			writeJSON(w, taclerr.InvalidArgument("value", "not valid base64"), nil)
			return
		}
		err = backend.Enqueue(req.Context(), body.Queue, value)
		writeJSON(w, err, map[string]any{"ok": err == nil})
	})
	r.Post("/internal/v1/storage/dequeue", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Queue string `json:"queue"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, taclerr.InvalidArgument("body", err.Error()), nil)
			return
		}
		value, ok, err := backend.Dequeue(req.Context(), body.Queue)
		writeJSON(w, err, map[string]any{"value": base64.StdEncoding.EncodeToString(value), "ok": ok})
	})

	return r
}

// writeJSON writes a JSON response, mapping a non-nil err to its taclerr
// status code via the same translation the frontend router uses.
func writeJSON(w http.ResponseWriter, err error, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(httpStatus(err))
		_ = json.NewEncoder(w).Encode(errorBody{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}
