// Package storage implements the Storage Gateway of spec §4.1: a key-value
// namespace holding every entity record plus the FIFO staged-task queue,
// grounded on the teacher's infrastructure/state.PersistenceBackend
// interface and CAS-based PersistentState.
package storage

import (
	"context"
	"sync"

	"github.com/teaclave-go/platform/internal/taclerr"
)

// Namespace key prefixes, spec §4.1.
const (
	PrefixFunction   = "function-"
	PrefixInputFile  = "input-file-"
	PrefixOutputFile = "output-file-"
	PrefixFusionData = "fusion-data-"
	PrefixTask       = "task-"
	PrefixStagedTask = "staged-task-"
	PrefixUser       = "user-"
	QueueStagedTasks = "staged-task-queue"
)

// Backend is the Storage Gateway's key-value contract (spec §4.1): byte-blob
// get/put/delete/list, plus CAS for the management service's optimistic
// concurrency on Task records, plus a dedicated FIFO queue primitive for the
// staged-task dispatch queue. Grounded on the teacher's PersistenceBackend,
// generalized with CAS and queue operations the teacher's KV store doesn't
// need but the scheduler does (spec §4.4).
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// CompareAndSwap stores value at key only if the current stored value's
	// bytes equal oldValue exactly (oldValue == nil means "key must not
	// exist"). Returns a Conflict error on mismatch.
	CompareAndSwap(ctx context.Context, key string, oldValue, newValue []byte) error
	Delete(ctx context.Context, key string) error
	GetKeysByPrefix(ctx context.Context, prefix string) ([]string, error)

	// Enqueue appends value to the tail of the named FIFO queue.
	Enqueue(ctx context.Context, queue string, value []byte) error
	// Dequeue pops and returns the queue head, or (nil, false, nil) if empty.
	Dequeue(ctx context.Context, queue string) (value []byte, ok bool, err error)

	Close(ctx context.Context) error
}

// MemoryBackend is an in-process Backend, grounded on the teacher's
// infrastructure/state.MemoryBackend. Used by tests and single-process
// deployments; it has no durability across restarts.
type MemoryBackend struct {
	mu     sync.RWMutex
	data   map[string][]byte
	queues map[string][][]byte
}

// NewMemoryBackend builds an empty in-memory Backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data:   make(map[string][]byte),
		queues: make(map[string][][]byte),
	}
}

func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, taclerr.NotFound("key", key)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryBackend) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[key] = cp
	return nil
}

func (m *MemoryBackend) CompareAndSwap(ctx context.Context, key string, oldValue, newValue []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, exists := m.data[key]
	if oldValue == nil {
		if exists {
			return taclerr.Conflict("key", key, "already exists")
		}
	} else {
		if !exists || string(cur) != string(oldValue) {
			return taclerr.Conflict("key", key, "stored value does not match expected oldValue")
		}
	}
	cp := make([]byte, len(newValue))
	copy(cp, newValue)
	m.data[key] = cp
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryBackend) GetKeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *MemoryBackend) Enqueue(ctx context.Context, queue string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.queues[queue] = append(m.queues[queue], cp)
	return nil
}

func (m *MemoryBackend) Dequeue(ctx context.Context, queue string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queues[queue]
	if len(q) == 0 {
		return nil, false, nil
	}
	head := q[0]
	m.queues[queue] = q[1:]
	return head, true, nil
}

func (m *MemoryBackend) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	m.queues = make(map[string][][]byte)
	return nil
}
