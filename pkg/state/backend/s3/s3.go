// Package s3 implements an S3-compatible journal backend.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/evidlab-io/evidctl/pkg/state/backend"
)

func init() {
	backend.Register("s3", NewBackend)
}

const staleLockAge = time.Hour

// Backend stores the journal in an S3 bucket. Custom endpoints make it work
// against MinIO and R2 as well.
type Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewBackend creates an S3 backend. Required setting: bucket. Optional:
// region, key (object prefix), access_key, secret_key, endpoint,
// force_path_style.
func NewBackend(cfg map[string]string) (backend.Backend, error) {
	bucket := cfg["bucket"]
	if bucket == "" {
		return nil, fmt.Errorf("s3 backend requires a 'bucket' setting")
	}

	region := cfg["region"]
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKey := cfg["access_key"]; accessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, cfg["secret_key"], ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg["force_path_style"] == "true"
		if endpoint := cfg["endpoint"]; endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &Backend{
		client: client,
		bucket: bucket,
		prefix: cfg["key"],
	}, nil
}

func (b *Backend) Type() string {
	return "s3"
}

func (b *Backend) Read(ctx context.Context, entryPath string) (io.ReadCloser, error) {
	key := b.key(entryPath)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, backend.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", b.bucket, key, err)
	}
	return out.Body, nil
}

func (b *Backend) Write(ctx context.Context, entryPath string, data io.Reader) error {
	key := b.key(entryPath)
	content, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("failed to read journal entry: %w", err)
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &b.bucket,
		Key:         &key,
		Body:        bytes.NewReader(content),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to write s3://%s/%s: %w", b.bucket, key, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, entryPath string) error {
	key := b.key(entryPath)
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil
		}
		return fmt.Errorf("failed to delete s3://%s/%s: %w", b.bucket, key, err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := b.key(prefix)
	var paths []string
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: &b.bucket,
		Prefix: &fullPrefix,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", b.bucket, fullPrefix, err)
		}
		for _, obj := range page.Contents {
			paths = append(paths, strings.TrimPrefix(*obj.Key, b.prefix+"/"))
		}
	}
	return paths, nil
}

func (b *Backend) Exists(ctx context.Context, entryPath string) (bool, error) {
	key := b.key(entryPath)
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
	})
	if err != nil {
		var noKey *types.NoSuchKey
		var notFound *types.NotFound
		if errors.As(err, &noKey) || errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head s3://%s/%s: %w", b.bucket, key, err)
	}
	return true, nil
}

// Lock writes a lock object beside the path. S3 has no compare-and-swap, so
// this is advisory only; concurrent acquisitions within one round trip can
// both succeed.
func (b *Backend) Lock(ctx context.Context, entryPath string, info backend.LockInfo) (backend.Lock, error) {
	lockKey := b.key(entryPath + ".lock")

	if holder, err := b.readLockInfo(ctx, lockKey); err == nil {
		if time.Since(holder.Created) < staleLockAge {
			return nil, &backend.LockError{Info: holder, Err: backend.ErrLocked}
		}
	}

	info.ID = uuid.NewString()
	info.Path = entryPath
	info.Created = time.Now()

	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to encode lock info: %w", err)
	}
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &b.bucket,
		Key:         &lockKey,
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write lock object: %w", err)
	}

	return &objectLock{backend: b, key: lockKey, info: info}, nil
}

func (b *Backend) readLockInfo(ctx context.Context, key string) (backend.LockInfo, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
	})
	if err != nil {
		return backend.LockInfo{}, err
	}
	defer out.Body.Close()

	var info backend.LockInfo
	if err := json.NewDecoder(out.Body).Decode(&info); err != nil {
		return backend.LockInfo{}, err
	}
	return info, nil
}

func (b *Backend) key(entryPath string) string {
	if b.prefix == "" {
		return entryPath
	}
	return path.Join(b.prefix, entryPath)
}

type objectLock struct {
	backend *Backend
	key     string
	info    backend.LockInfo
}

func (l *objectLock) ID() string {
	return l.info.ID
}

func (l *objectLock) Info() backend.LockInfo {
	return l.info
}

func (l *objectLock) Unlock(ctx context.Context) error {
	_, err := l.backend.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &l.backend.bucket,
		Key:    &l.key,
	})
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
