// Package azurerm implements an Azure Blob Storage journal backend.
package azurerm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/google/uuid"

	"github.com/evidlab-io/evidctl/pkg/state/backend"
)

func init() {
	backend.Register("azurerm", NewBackend)
}

const staleLockAge = time.Hour

// Backend stores the journal in an Azure blob container.
type Backend struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewBackend creates an Azure backend. Required settings:
// storage_account_name, container_name. Authentication falls through
// access_key, sas_token, connection_string, then DefaultAzureCredential.
// The endpoint setting points at an Azurite emulator.
func NewBackend(cfg map[string]string) (backend.Backend, error) {
	account := cfg["storage_account_name"]
	if account == "" {
		return nil, fmt.Errorf("azurerm backend requires a 'storage_account_name' setting")
	}
	containerName := cfg["container_name"]
	if containerName == "" {
		return nil, fmt.Errorf("azurerm backend requires a 'container_name' setting")
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", account)
	if endpoint := cfg["endpoint"]; endpoint != "" {
		serviceURL = endpoint
	}

	client, err := newClient(serviceURL, account, cfg)
	if err != nil {
		return nil, err
	}

	return &Backend{
		client:    client,
		container: containerName,
		prefix:    cfg["key"],
	}, nil
}

func newClient(serviceURL, account string, cfg map[string]string) (*azblob.Client, error) {
	if accessKey := cfg["access_key"]; accessKey != "" {
		cred, err := azblob.NewSharedKeyCredential(account, accessKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", err)
		}
		client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure client: %w", err)
		}
		return client, nil
	}

	if sasToken := cfg["sas_token"]; sasToken != "" {
		sep := "?"
		if strings.Contains(serviceURL, "?") {
			sep = "&"
		}
		client, err := azblob.NewClientWithNoCredential(serviceURL+sep+strings.TrimPrefix(sasToken, "?"), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure client with SAS token: %w", err)
		}
		return client, nil
	}

	if connStr := cfg["connection_string"]; connStr != "" {
		client, err := azblob.NewClientFromConnectionString(connStr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure client from connection string: %w", err)
		}
		return client, nil
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create default Azure credential: %w", err)
	}
	client, err := azblob.NewClient(serviceURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}
	return client, nil
}

func (b *Backend) Type() string {
	return "azurerm"
}

func (b *Backend) Read(ctx context.Context, entryPath string) (io.ReadCloser, error) {
	name := b.blobName(entryPath)
	resp, err := b.client.DownloadStream(ctx, b.container, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, backend.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read azure://%s/%s: %w", b.container, name, err)
	}
	return resp.Body, nil
}

func (b *Backend) Write(ctx context.Context, entryPath string, data io.Reader) error {
	name := b.blobName(entryPath)
	content, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("failed to read journal entry: %w", err)
	}
	_, err = b.client.UploadBuffer(ctx, b.container, name, content, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: toPtr("application/json")},
	})
	if err != nil {
		return fmt.Errorf("failed to write azure://%s/%s: %w", b.container, name, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, entryPath string) error {
	name := b.blobName(entryPath)
	_, err := b.client.DeleteBlob(ctx, b.container, name, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("failed to delete azure://%s/%s: %w", b.container, name, err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := b.blobName(prefix)
	var paths []string
	pager := b.client.NewListBlobsFlatPager(b.container, &container.ListBlobsFlatOptions{
		Prefix: &fullPrefix,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list azure://%s/%s: %w", b.container, fullPrefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			name := *item.Name
			if b.prefix != "" {
				name = strings.TrimPrefix(name, b.prefix+"/")
			}
			paths = append(paths, name)
		}
	}
	return paths, nil
}

func (b *Backend) Exists(ctx context.Context, entryPath string) (bool, error) {
	name := b.blobName(entryPath)
	_, err := b.client.ServiceClient().NewContainerClient(b.container).NewBlobClient(name).GetProperties(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return false, nil
		}
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat azure://%s/%s: %w", b.container, name, err)
	}
	return true, nil
}

func (b *Backend) Lock(ctx context.Context, entryPath string, info backend.LockInfo) (backend.Lock, error) {
	lockName := b.blobName(entryPath + ".lock")

	if holder, err := b.readLockInfo(ctx, lockName); err == nil {
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
	_, err = b.client.UploadBuffer(ctx, b.container, lockName, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: toPtr("application/json")},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write lock blob: %w", err)
	}

	return &blobLock{backend: b, name: lockName, info: info}, nil
}

func (b *Backend) readLockInfo(ctx context.Context, lockName string) (backend.LockInfo, error) {
	resp, err := b.client.DownloadStream(ctx, b.container, lockName, nil)
	if err != nil {
		return backend.LockInfo{}, err
	}
	defer resp.Body.Close()

	var info backend.LockInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return backend.LockInfo{}, err
	}
	return info, nil
}

func (b *Backend) blobName(entryPath string) string {
	if b.prefix == "" {
		return entryPath
	}
	return path.Join(b.prefix, entryPath)
}

type blobLock struct {
	backend *Backend
	name    string
	info    backend.LockInfo
}

func (l *blobLock) ID() string {
	return l.info.ID
}

func (l *blobLock) Info() backend.LockInfo {
	return l.info
}

func (l *blobLock) Unlock(ctx context.Context) error {
	_, err := l.backend.client.DeleteBlob(ctx, l.backend.container, l.name, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

var _ backend.Backend = (*Backend)(nil)

func toPtr[T any](v T) *T {
	return &v
}
