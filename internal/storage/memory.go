package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"sync"
)

// Memory is an in-process backend for tests and dry runs.
type Memory struct {
	mu      sync.RWMutex
	name    string
	objects map[string][]byte
}

// NewMemory returns an empty in-memory backend.
func NewMemory(name string) *Memory {
	return &Memory{name: name, objects: make(map[string][]byte)}
}

func (m *Memory) String() string {
	return "memory:" + m.name
}

func (m *Memory) Put(ctx context.Context, key string, r io.Reader, _ int64) error {
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(contextReader{ctx: ctx, r: r})
	if err != nil {
		return failure("put", key, err)
	}
	m.mu.Lock()
	m.objects[cleaned] = data
	m.mu.Unlock()
	return nil
}

func (m *Memory) Open(_ context.Context, key string) (io.ReadCloser, error) {
	data, err := m.get("open", key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) Stat(_ context.Context, key string) (int64, error) {
	data, err := m.get("stat", key)
	if err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (m *Memory) Move(_ context.Context, src, dst string) error {
	from, err := CleanKey(src)
	if err != nil {
		return err
	}
	to, err := CleanKey(dst)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[from]
	if !ok {
		return notFound("move", src, errors.New("no such object"))
	}
	delete(m.objects, from)
	m.objects[to] = data
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	cleaned, err := CleanKey(key)
	if err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.objects, cleaned)
	m.mu.Unlock()
	return nil
}

// Keys lists stored keys in order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key exists.
func (m *Memory) Has(key string) bool {
	cleaned, err := CleanKey(key)
	if err != nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[cleaned]
	return ok
}

func (m *Memory) get(op, key string) ([]byte, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[cleaned]
	if !ok {
		return nil, notFound(op, key, errors.New("no such object"))
	}
	return data, nil
}
