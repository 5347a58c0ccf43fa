package execution

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// newStaticServer serves seed under the given paths for GET and accepts PUT
// uploads to any path, storing them for later retrieval by GET. It exists
// so worker tests can exercise Fetcher's real HTTP code path instead of a
// file:// shim.
func newStaticServer(t *testing.T, seed map[string][]byte) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	store := make(map[string][]byte, len(seed))
	for k, v := range seed {
		store[k] = v
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			mu.Lock()
			data, ok := store[r.URL.Path]
			mu.Unlock()
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write(data)
		case http.MethodPut:
			data, err := io.ReadAll(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			mu.Lock()
			store[r.URL.Path] = data
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}
