// Package storagetest provides an in-memory storage.Service for tests.
package storagetest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"multiactivity/internal/storage"
)

type object struct {
	data         []byte
	contentType  string
	lastModified time.Time
}

// Memory is a storage.Service backed by a map
type Memory struct {
	mu      sync.Mutex
	objects map[string]object

	// Err, when set, is returned by every operation
	Err error
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]object)}
}

// Put stores data under key with the given modification time
func (m *Memory) Put(key string, data []byte, modified time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = object{data: data, lastModified: modified}
}

// Has reports whether key is stored
func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

// Data returns the stored bytes for key
func (m *Memory) Data(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[key].data
}

// Keys returns every stored key in sorted order
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Memory) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if m.Err != nil {
		return m.Err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = object{data: data, contentType: contentType, lastModified: time.Now()}
	return nil
}

func (m *Memory) ListObjects(ctx context.Context, prefix string, limit int32) ([]storage.Object, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	var out []storage.Object
	for _, k := range m.Keys() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if limit > 0 && int32(len(out)) >= limit {
			break
		}
		m.mu.Lock()
		obj := m.objects[k]
		m.mu.Unlock()
		out = append(out, storage.Object{Key: k, Size: int64(len(obj.data)), LastModified: obj.lastModified})
	}
	return out, nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	if m.Err != nil {
		return false, m.Err
	}
	return m.Has(key), nil
}

func (m *Memory) CopyObject(ctx context.Context, src, dst string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[src]
	if !ok {
		return storage.ErrObjectNotFound
	}
	obj.lastModified = time.Now()
	m.objects[dst] = obj
	return nil
}

func (m *Memory) DeleteObject(ctx context.Context, key string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *Memory) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	if prefix == "" || !strings.HasSuffix(prefix, "/") {
		return 0, fmt.Errorf("refusing to delete prefix %q", prefix)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			delete(m.objects, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	return "https://storage.test/" + key + "?ttl=" + ttl.String(), nil
}

func (m *Memory) EnsureBucketExists(ctx context.Context) error { return m.Err }

func (m *Memory) Health(ctx context.Context) error { return m.Err }

var _ storage.Service = (*Memory)(nil)
