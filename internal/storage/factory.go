package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"cutline/internal/config"
	"cutline/internal/services"
)

// Set groups the three backends a deployment uses.
type Set struct {
	Exports      Backend
	Proxies      Backend
	Archive      Backend
	ArchiveCodec Codec
}

// OpenSet constructs every configured backend.
func OpenSet(ctx context.Context, cfg *config.Config) (*Set, error) {
	exports, err := New(ctx, cfg.Storage.Exports)
	if err != nil {
		return nil, fmt.Errorf("storage.exports: %w", err)
	}
	proxies, err := New(ctx, cfg.Storage.Proxies)
	if err != nil {
		return nil, fmt.Errorf("storage.proxies: %w", err)
	}
	archive, err := New(ctx, cfg.Storage.Archive)
	if err != nil {
		return nil, fmt.Errorf("storage.archive: %w", err)
	}
	codec, err := ParseCodec(cfg.Storage.ArchiveCodec)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "codec", "", err)
	}
	return &Set{Exports: exports, Proxies: proxies, Archive: archive, ArchiveCodec: codec}, nil
}

// New constructs a backend from its config section.
func New(ctx context.Context, spec config.Backend) (Backend, error) {
	switch spec.Kind {
	case config.BackendLocal, "":
		return NewLocal(spec.Dir)
	case config.BackendS3:
		client, err := newS3Client(ctx, spec)
		if err != nil {
			return nil, err
		}
		return NewS3(client, spec.Bucket, spec.Prefix), nil
	case config.BackendMinIO:
		client, err := minio.New(spec.Endpoint, &minio.Options{
			Creds:  miniocreds.NewStaticV4(spec.AccessKey, spec.SecretKey, ""),
			Secure: spec.UseSSL,
			Region: spec.Region,
		})
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "storage", "minio client", spec.Endpoint, err)
		}
		return NewMinIO(client, spec.Bucket, spec.Prefix), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "storage", "open", fmt.Sprintf("unknown backend kind %q", spec.Kind), nil)
	}
}

func newS3Client(ctx context.Context, spec config.Backend) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if spec.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(spec.Region))
	}
	if spec.AccessKey != "" && spec.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(spec.AccessKey, spec.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "aws config", "", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if spec.Endpoint != "" {
			o.BaseEndpoint = aws.String(spec.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
