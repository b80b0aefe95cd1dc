package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cutline/internal/services"
)

// Backend is a key-addressed blob store.
type Backend interface {
	// Put stores r under key, replacing any existing object. size may be -1
	// when unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	// Open returns a reader for the object at key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Stat returns the object size in bytes.
	Stat(ctx context.Context, key string) (int64, error)
	// Move renames an object within the backend.
	Move(ctx context.Context, src, dst string) error
	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// String describes the backend for logs.
	String() string
}

// CleanKey normalizes a key and rejects keys that escape the backend root.
func CleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", services.Wrap(services.ErrValidation, "storage", "key", "empty key", nil)
	}
	cleaned := path.Clean("/" + strings.ReplaceAll(trimmed, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", services.Wrap(services.ErrValidation, "storage", "key", fmt.Sprintf("invalid key %q", key), nil)
	}
	for _, segment := range strings.Split(trimmed, "/") {
		if segment == ".." {
			return "", services.Wrap(services.ErrValidation, "storage", "key", fmt.Sprintf("key %q escapes root", key), nil)
		}
	}
	return cleaned, nil
}

// PutFile uploads a local file and returns its size.
func PutFile(ctx context.Context, b Backend, key, localPath string) (int64, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return 0, services.Wrap(services.ErrStorage, "storage", "put file", localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, services.Wrap(services.ErrStorage, "storage", "put file", localPath, err)
	}
	if err := b.Put(ctx, key, file, info.Size()); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func notFound(op, key string, err error) error {
	return services.Wrap(services.ErrNotFound, "storage", op, key, err)
}

func failure(op, key string, err error) error {
	return services.Wrap(services.ErrStorage, "storage", op, key, err)
}
