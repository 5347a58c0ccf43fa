package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/teaclave-go/platform/internal/taclerr"
)

var (
	bucketEntries = []byte("entries")
	bucketQueues  = []byte("queues")
)

// BoltBackend is a durable Backend, grounded on the teacher's
// cuemby-warren storage.BoltStore bucket-per-entity JSON pattern, adapted
// here to a single generic key space since the Storage Gateway's record
// types are opaque blobs managed by the services above it.
type BoltBackend struct {
	db *bolt.DB
}

// NewBoltBackend opens (creating if absent) a bbolt file under dataDir.
func NewBoltBackend(dataDir string) (*BoltBackend, error) {
	path := filepath.Join(dataDir, "teaclave-storage.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, taclerr.Storage("open", fmt.Errorf("open %s: %w", path, err))
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketEntries); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketQueues)
		return err
	})
	if err != nil {
		db.Close()
		return nil, taclerr.Storage("create_buckets", err)
	}
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketEntries).Get([]byte(key))
		if v == nil {
			return taclerr.NotFound("key", key)
		}
		out = make([]byte, len(v))
		copy(out, v)
		return nil
	})
	return out, err
}

func (b *BoltBackend) Put(ctx context.Context, key string, value []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Put([]byte(key), value)
	})
	if err != nil {
		return taclerr.Storage("put", err)
	}
	return nil
}

func (b *BoltBackend) CompareAndSwap(ctx context.Context, key string, oldValue, newValue []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(bucketEntries)
		cur := bk.Get([]byte(key))
		if oldValue == nil {
			if cur != nil {
				return taclerr.Conflict("key", key, "already exists")
			}
		} else {
			if cur == nil || string(cur) != string(oldValue) {
				return taclerr.Conflict("key", key, "stored value does not match expected oldValue")
			}
		}
		return bk.Put([]byte(key), newValue)
	})
	return err
}

func (b *BoltBackend) Delete(ctx context.Context, key string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Delete([]byte(key))
	})
	if err != nil {
		return taclerr.Storage("delete", err)
	}
	return nil
}

func (b *BoltBackend) GetKeysByPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEntries).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && hasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, taclerr.Storage("list", err)
	}
	return keys, nil
}

func hasPrefix(k, prefix []byte) bool {
	if len(k) < len(prefix) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Enqueue stores value under a monotonically increasing sequence key inside
// a per-queue sub-bucket, so Dequeue can pop in FIFO order via Cursor.First.
func (b *BoltBackend) Enqueue(ctx context.Context, queue string, value []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		qb, err := tx.Bucket(bucketQueues).CreateBucketIfNotExists([]byte(queue))
		if err != nil {
			return err
		}
		seq, err := qb.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return qb.Put(key, value)
	})
	if err != nil {
		return taclerr.Storage("enqueue", err)
	}
	return nil
}

func (b *BoltBackend) Dequeue(ctx context.Context, queue string) ([]byte, bool, error) {
	var value []byte
	var ok bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		qb := tx.Bucket(bucketQueues).Bucket([]byte(queue))
		if qb == nil {
			return nil
		}
		c := qb.Cursor()
		k, v := c.First()
		if k == nil {
			return nil
		}
		value = make([]byte, len(v))
		copy(value, v)
		ok = true
		return qb.Delete(k)
	})
	if err != nil {
		return nil, false, taclerr.Storage("dequeue", err)
	}
	return value, ok, nil
}

func (b *BoltBackend) Close(ctx context.Context) error {
	if err := b.db.Close(); err != nil {
		return taclerr.Storage("close", err)
	}
	return nil
}
