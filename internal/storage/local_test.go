package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cutline/internal/services"
	"cutline/internal/storage"
)

func backends(t *testing.T) map[string]storage.Backend {
	t.Helper()
	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	return map[string]storage.Backend{
		"local":  local,
		"memory": storage.NewMemory("test"),
	}
}

func TestBackendContract(t *testing.T) {
	for name, backend := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			payload := []byte("proxy bytes")

			require.NoError(t, backend.Put(ctx, "tmp/job-1/out.mp4", bytes.NewReader(payload), int64(len(payload))))

			size, err := backend.Stat(ctx, "tmp/job-1/out.mp4")
			require.NoError(t, err)
			assert.Equal(t, int64(len(payload)), size)

			require.NoError(t, backend.Move(ctx, "tmp/job-1/out.mp4", "proxies/p1/v1.mp4"))
			_, err = backend.Stat(ctx, "tmp/job-1/out.mp4")
			assert.True(t, errors.Is(err, services.ErrNotFound), "source should be gone: %v", err)

			reader, err := backend.Open(ctx, "proxies/p1/v1.mp4")
			require.NoError(t, err)
			got, err := io.ReadAll(reader)
			require.NoError(t, reader.Close())
			require.NoError(t, err)
			assert.Equal(t, payload, got)

			require.NoError(t, backend.Delete(ctx, "proxies/p1/v1.mp4"))
			require.NoError(t, backend.Delete(ctx, "proxies/p1/v1.mp4"), "delete must be idempotent")

			_, err = backend.Open(ctx, "proxies/p1/v1.mp4")
			assert.True(t, errors.Is(err, services.ErrNotFound))
			err = backend.Move(ctx, "missing", "other")
			assert.True(t, errors.Is(err, services.ErrNotFound))
		})
	}
}

func TestCleanKeyRejectsEscapes(t *testing.T) {
	for _, key := range []string{"", "  ", "../etc/passwd", "a/../../b", "/"} {
		_, err := storage.CleanKey(key)
		assert.Error(t, err, "key %q", key)
		assert.True(t, errors.Is(err, services.ErrValidation), "key %q", key)
	}
	cleaned, err := storage.CleanKey("/exports//p1/./v2.mp4")
	require.NoError(t, err)
	assert.Equal(t, "exports/p1/v2.mp4", cleaned)
}

func TestLocalPutIsAtomicAndPrunesDirectories(t *testing.T) {
	root := t.TempDir()
	local, err := storage.NewLocal(root)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, local.Put(ctx, "a/b/c.bin", strings.NewReader("x"), 1))
	entries, err := os.ReadDir(filepath.Join(root, "a", "b"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files should remain")

	require.NoError(t, local.Delete(ctx, "a/b/c.bin"))
	_, err = os.Stat(filepath.Join(root, "a"))
	assert.True(t, os.IsNotExist(err), "empty parents should be pruned")
	_, err = os.Stat(root)
	assert.NoError(t, err, "root must survive pruning")
}

func TestPutFileReportsSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "render.mp4")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{1}, 2048), 0o644))

	mem := storage.NewMemory("exports")
	size, err := storage.PutFile(context.Background(), mem, "tmp/j/render.mp4", path)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), size)
	assert.True(t, mem.Has("tmp/j/render.mp4"))
}

func TestPutHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	err = local.Put(ctx, "x", strings.NewReader("data"), 4)
	assert.Error(t, err)
}
