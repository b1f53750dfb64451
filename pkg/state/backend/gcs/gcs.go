// Package gcs implements a Google Cloud Storage journal backend.
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/evidlab-io/evidctl/pkg/state/backend"
)

func init() {
	backend.Register("gcs", NewBackend)
}

const staleLockAge = time.Hour

// Backend stores the journal in a GCS bucket.
type Backend struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewBackend creates a GCS backend. Required setting: bucket. Optional:
// prefix, credentials (file path), credentials_json, endpoint (emulator).
func NewBackend(cfg map[string]string) (backend.Backend, error) {
	bucket := cfg["bucket"]
	if bucket == "" {
		return nil, fmt.Errorf("gcs backend requires a 'bucket' setting")
	}

	var opts []option.ClientOption
	if file := cfg["credentials"]; file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	if raw := cfg["credentials_json"]; raw != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(raw)))
	}
	if endpoint := cfg["endpoint"]; endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &Backend{
		client: client,
		bucket: bucket,
		prefix: cfg["prefix"],
	}, nil
}

func (b *Backend) Type() string {
	return "gcs"
}

func (b *Backend) Read(ctx context.Context, entryPath string) (io.ReadCloser, error) {
	object := b.object(entryPath)
	reader, err := b.client.Bucket(b.bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, backend.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", b.bucket, object, err)
	}
	return reader, nil
}

func (b *Backend) Write(ctx context.Context, entryPath string, data io.Reader) error {
	object := b.object(entryPath)
	writer := b.client.Bucket(b.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = "application/json"

	if _, err := io.Copy(writer, data); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", b.bucket, object, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to commit gs://%s/%s: %w", b.bucket, object, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, entryPath string) error {
	object := b.object(entryPath)
	err := b.client.Bucket(b.bucket).Object(object).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete gs://%s/%s: %w", b.bucket, object, err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	it := b.client.Bucket(b.bucket).Objects(ctx, &storage.Query{
		Prefix: b.object(prefix),
	})

	var paths []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", b.bucket, prefix, err)
		}
		name := attrs.Name
		if b.prefix != "" {
			name = strings.TrimPrefix(name, b.prefix+"/")
		}
		paths = append(paths, name)
	}
	return paths, nil
}

func (b *Backend) Exists(ctx context.Context, entryPath string) (bool, error) {
	object := b.object(entryPath)
	_, err := b.client.Bucket(b.bucket).Object(object).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat gs://%s/%s: %w", b.bucket, object, err)
	}
	return true, nil
}

// Lock acquires a lock using a generation-zero precondition, so two
// concurrent acquisitions cannot both create the lock object.
func (b *Backend) Lock(ctx context.Context, entryPath string, info backend.LockInfo) (backend.Lock, error) {
	lockObject := b.object(entryPath + ".lock")

	if holder, err := b.readLockInfo(ctx, lockObject); err == nil {
		if time.Since(holder.Created) < staleLockAge {
			return nil, &backend.LockError{Info: holder, Err: backend.ErrLocked}
		}
		// Stale lock. Remove it so the conditional create below can win.
		_ = b.client.Bucket(b.bucket).Object(lockObject).Delete(ctx)
	}

	info.ID = uuid.NewString()
	info.Path = entryPath
	info.Created = time.Now()

	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to encode lock info: %w", err)
	}

	writer := b.client.Bucket(b.bucket).Object(lockObject).
		If(storage.Conditions{DoesNotExist: true}).
		NewWriter(ctx)
	writer.ContentType = "application/json"

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write lock object: %w", err)
	}
	if err := writer.Close(); err != nil {
		// Precondition failure means someone else won the race.
		if holder, readErr := b.readLockInfo(ctx, lockObject); readErr == nil {
			return nil, &backend.LockError{Info: holder, Err: backend.ErrLocked}
		}
		return nil, fmt.Errorf("failed to create lock object: %w", err)
	}

	return &gcsLock{backend: b, object: lockObject, info: info}, nil
}

func (b *Backend) readLockInfo(ctx context.Context, lockObject string) (backend.LockInfo, error) {
	reader, err := b.client.Bucket(b.bucket).Object(lockObject).NewReader(ctx)
	if err != nil {
		return backend.LockInfo{}, err
	}
	defer reader.Close()

	var info backend.LockInfo
	if err := json.NewDecoder(reader).Decode(&info); err != nil {
		return backend.LockInfo{}, err
	}
	return info, nil
}

func (b *Backend) object(entryPath string) string {
	if b.prefix == "" {
		return entryPath
	}
	return path.Join(b.prefix, entryPath)
}

// Close releases the underlying client.
func (b *Backend) Close() error {
	return b.client.Close()
}

type gcsLock struct {
	backend *Backend
	object  string
	info    backend.LockInfo
}

func (l *gcsLock) ID() string {
	return l.info.ID
}

func (l *gcsLock) Info() backend.LockInfo {
	return l.info
}

func (l *gcsLock) Unlock(ctx context.Context) error {
	err := l.backend.client.Bucket(l.backend.bucket).Object(l.object).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

var _ backend.Backend = (*Backend)(nil)
