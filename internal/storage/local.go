package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Local stores objects as files under a root directory.
type Local struct {
	root string
}

// NewLocal creates a Local backend rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, failure("open", "", errors.New("local storage requires a directory"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, failure("open", dir, err)
	}
	return &Local{root: dir}, nil
}

func (l *Local) String() string {
	return "local:" + l.root
}

// Root returns the backing directory.
func (l *Local) Root() string {
	return l.root
}

func (l *Local) path(key string) (string, error) {
	cleaned, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(cleaned)), nil
}

func (l *Local) Put(ctx context.Context, key string, r io.Reader, _ int64) error {
	target, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return failure("put", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".put-*")
	if err != nil {
		return failure("put", key, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: r}); err != nil {
		_ = tmp.Close()
		cleanup()
		return failure("put", key, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return failure("put", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return failure("put", key, err)
	}
	return nil
}

func (l *Local) Open(_ context.Context, key string) (io.ReadCloser, error) {
	target, err := l.path(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound("open", key, err)
	}
	if err != nil {
		return nil, failure("open", key, err)
	}
	return file, nil
}

func (l *Local) Stat(_ context.Context, key string) (int64, error) {
	target, err := l.path(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, notFound("stat", key, err)
	}
	if err != nil {
		return 0, failure("stat", key, err)
	}
	if info.IsDir() {
		return 0, failure("stat", key, fmt.Errorf("%s is a directory", target))
	}
	return info.Size(), nil
}

func (l *Local) Move(_ context.Context, src, dst string) error {
	from, err := l.path(src)
	if err != nil {
		return err
	}
	to, err := l.path(dst)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return failure("move", dst, err)
	}
	if err := os.Rename(from, to); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound("move", src, err)
		}
		return failure("move", src, err)
	}
	l.pruneEmptyDirs(filepath.Dir(from))
	return nil
}

func (l *Local) Delete(_ context.Context, key string) error {
	target, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return failure("delete", key, err)
	}
	l.pruneEmptyDirs(filepath.Dir(target))
	return nil
}

// pruneEmptyDirs removes now-empty parents up to (not including) the root.
func (l *Local) pruneEmptyDirs(dir string) {
	root := filepath.Clean(l.root)
	for dir = filepath.Clean(dir); dir != root && len(dir) > len(root); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
