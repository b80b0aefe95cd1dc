package storage

import (
	"context"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
)

// MinIO stores objects in an S3-compatible bucket through minio-go.
type MinIO struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinIO creates a MinIO backend.
func NewMinIO(client *minio.Client, bucket, prefix string) *MinIO {
	return &MinIO{client: client, bucket: bucket, prefix: prefix}
}

func (m *MinIO) String() string {
	return "minio://" + path.Join(m.bucket, m.prefix)
}

func (m *MinIO) key(name string) (string, error) {
	cleaned, err := CleanKey(name)
	if err != nil {
		return "", err
	}
	return path.Join(m.prefix, cleaned), nil
}

func isMinIONotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func (m *MinIO) Put(ctx context.Context, name string, r io.Reader, size int64) error {
	key, err := m.key(name)
	if err != nil {
		return err
	}
	if _, err := m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{}); err != nil {
		return failure("put", name, err)
	}
	return nil
}

func (m *MinIO) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	key, err := m.key(name)
	if err != nil {
		return nil, err
	}
	// GetObject is lazy; stat first so a missing key fails here.
	if _, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isMinIONotFound(err) {
			return nil, notFound("open", name, err)
		}
		return nil, failure("open", name, err)
	}
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, failure("open", name, err)
	}
	return obj, nil
}

func (m *MinIO) Stat(ctx context.Context, name string) (int64, error) {
	key, err := m.key(name)
	if err != nil {
		return 0, err
	}
	info, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isMinIONotFound(err) {
			return 0, notFound("stat", name, err)
		}
		return 0, failure("stat", name, err)
	}
	return info.Size, nil
}

func (m *MinIO) Move(ctx context.Context, src, dst string) error {
	from, err := m.key(src)
	if err != nil {
		return err
	}
	to, err := m.key(dst)
	if err != nil {
		return err
	}
	if _, err := m.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: m.bucket, Object: to},
		minio.CopySrcOptions{Bucket: m.bucket, Object: from},
	); err != nil {
		if isMinIONotFound(err) {
			return notFound("move", src, err)
		}
		return failure("move", src, err)
	}
	if err := m.client.RemoveObject(ctx, m.bucket, from, minio.RemoveObjectOptions{}); err != nil && !isMinIONotFound(err) {
		return failure("move", src, err)
	}
	return nil
}

func (m *MinIO) Delete(ctx context.Context, name string) error {
	key, err := m.key(name)
	if err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil && !isMinIONotFound(err) {
		return failure("delete", name, err)
	}
	return nil
}
