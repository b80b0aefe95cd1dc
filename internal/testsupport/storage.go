package testsupport

import (
	"context"
	"io"
	"strings"
	"sync"

	"cutline/internal/storage"
)

// FaultyBackend wraps a Backend and fails selected operations. Rules match
// on key prefix; Move matches on its source key. OnCall, when set, runs
// before every operation.
type FaultyBackend struct {
	storage.Backend
	OnCall func(op, key string)

	mu    sync.Mutex
	rules map[string]map[string]error
	hits  map[string]int
}

// NewFaultyBackend wraps inner.
func NewFaultyBackend(inner storage.Backend) *FaultyBackend {
	return &FaultyBackend{Backend: inner, rules: make(map[string]map[string]error), hits: make(map[string]int)}
}

// FailOn makes op ("put", "open", "stat", "move", "delete") fail with err for
// keys starting with prefix.
func (f *FaultyBackend) FailOn(op, prefix string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rules[op] == nil {
		f.rules[op] = make(map[string]error)
	}
	f.rules[op][prefix] = err
}

// Clear removes all rules.
func (f *FaultyBackend) Clear() {
	f.mu.Lock()
	f.rules = make(map[string]map[string]error)
	f.mu.Unlock()
}

// Hits reports how many times op was attempted.
func (f *FaultyBackend) Hits(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[op]
}

func (f *FaultyBackend) check(op, key string) error {
	if f.OnCall != nil {
		f.OnCall(op, key)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits[op]++
	for prefix, err := range f.rules[op] {
		if strings.HasPrefix(key, prefix) {
			return err
		}
	}
	return nil
}

func (f *FaultyBackend) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := f.check("put", key); err != nil {
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return f.Backend.Put(ctx, key, r, size)
}

func (f *FaultyBackend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := f.check("open", key); err != nil {
		return nil, err
	}
	return f.Backend.Open(ctx, key)
}

func (f *FaultyBackend) Stat(ctx context.Context, key string) (int64, error) {
	if err := f.check("stat", key); err != nil {
		return 0, err
	}
	return f.Backend.Stat(ctx, key)
}

func (f *FaultyBackend) Move(ctx context.Context, src, dst string) error {
	if err := f.check("move", src); err != nil {
		return err
	}
	return f.Backend.Move(ctx, src, dst)
}

func (f *FaultyBackend) Delete(ctx context.Context, key string) error {
	if err := f.check("delete", key); err != nil {
		return err
	}
	return f.Backend.Delete(ctx, key)
}
