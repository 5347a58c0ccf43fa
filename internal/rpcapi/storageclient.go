package rpcapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/teaclave-go/platform/internal/storage"
	"github.com/teaclave-go/platform/internal/taclerr"
)

// RemoteBackend implements storage.Backend by calling a storage service's
// mesh router (mesh.go) over HTTP. It lets the management and scheduler
// services run in a process separate from the Storage Gateway, the
// deployment spec §4 describes as the normal topology.
type RemoteBackend struct {
	baseURL string
	client  *http.Client
}

// NewRemoteBackend builds a RemoteBackend against baseURL (the storage
// service's internal_endpoints.storage.advertised_address).
func NewRemoteBackend(baseURL string, client *http.Client) *RemoteBackend {
	if client == nil {
		client = http.DefaultClient
	}
	return &RemoteBackend{baseURL: baseURL, client: client}
}

func (r *RemoteBackend) do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	u := r.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, taclerr.Internal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, taclerr.Internal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, taclerr.Storage(path, err)
	}
	return resp, nil
}

func decodeOrError(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e errorBody
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return remoteError(resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// remoteError reconstructs a taclerr category from the status code a mesh
// handler sent, since the original Category doesn't cross the wire.
func remoteError(status int, message string) error {
	switch status {
	case http.StatusNotFound:
		return taclerr.NotFound("remote", message)
	case http.StatusConflict:
		return taclerr.Conflict("remote", "", message)
	case http.StatusBadRequest:
		return taclerr.InvalidArgument("remote", message)
	default:
		return taclerr.Storage("remote", fmt.Errorf("%s", message))
	}
}

func (r *RemoteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := r.do(ctx, http.MethodGet, "/internal/v1/storage/value", url.Values{"key": {key}}, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Value string `json:"value"`
	}
	if err := decodeOrError(resp, &out); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(out.Value)
}

func (r *RemoteBackend) Put(ctx context.Context, key string, value []byte) error {
	resp, err := r.do(ctx, http.MethodPut, "/internal/v1/storage/value", nil, map[string]string{
		"key": key, "value": base64.StdEncoding.EncodeToString(value),
	})
	if err != nil {
		return err
	}
	return decodeOrError(resp, nil)
}

func (r *RemoteBackend) CompareAndSwap(ctx context.Context, key string, oldValue, newValue []byte) error {
	body := map[string]any{
		"key":       key,
		"new_value": base64.StdEncoding.EncodeToString(newValue),
	}
	if oldValue != nil {
		encoded := base64.StdEncoding.EncodeToString(oldValue)
		body["old_value"] = &encoded
	}
	resp, err := r.do(ctx, http.MethodPost, "/internal/v1/storage/cas", nil, body)
	if err != nil {
		return err
	}
	return decodeOrError(resp, nil)
}

func (r *RemoteBackend) Delete(ctx context.Context, key string) error {
	resp, err := r.do(ctx, http.MethodDelete, "/internal/v1/storage/value", url.Values{"key": {key}}, nil)
	if err != nil {
		return err
	}
	return decodeOrError(resp, nil)
}

func (r *RemoteBackend) GetKeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	resp, err := r.do(ctx, http.MethodGet, "/internal/v1/storage/keys", url.Values{"prefix": {prefix}}, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Keys []string `json:"keys"`
	}
	if err := decodeOrError(resp, &out); err != nil {
		return nil, err
	}
	return out.Keys, nil
}

func (r *RemoteBackend) Enqueue(ctx context.Context, queue string, value []byte) error {
	resp, err := r.do(ctx, http.MethodPost, "/internal/v1/storage/enqueue", nil, map[string]string{
		"queue": queue, "value": base64.StdEncoding.EncodeToString(value),
	})
	if err != nil {
		return err
	}
	return decodeOrError(resp, nil)
}

func (r *RemoteBackend) Dequeue(ctx context.Context, queue string) ([]byte, bool, error) {
	resp, err := r.do(ctx, http.MethodPost, "/internal/v1/storage/dequeue", nil, map[string]string{"queue": queue})
	if err != nil {
		return nil, false, err
	}
	var out struct {
		Value string `json:"value"`
		OK    bool   `json:"ok"`
	}
	if err := decodeOrError(resp, &out); err != nil {
		return nil, false, err
	}
	if !out.OK {
		return nil, false, nil
	}
	value, err := base64.StdEncoding.DecodeString(out.Value)
	return value, true, err
}

func (r *RemoteBackend) Close(ctx context.Context) error {
	return nil
}

var _ storage.Backend = (*RemoteBackend)(nil)
