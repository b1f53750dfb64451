// Package local implements a filesystem journal backend.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evidlab-io/evidctl/pkg/state/backend"
)

func init() {
	backend.Register("local", NewBackend)
}

// staleLockAge is how old an on-disk lock may be before a new acquisition
// steals it. Covers processes that died without unlocking.
const staleLockAge = time.Hour

// Backend stores the journal under a directory on the local filesystem.
type Backend struct {
	root  string
	mu    sync.Mutex
	locks map[string]*fileLock
}

// NewBackend creates a local backend. The "path" setting overrides the
// default of ~/.evidctl/journal.
func NewBackend(config map[string]string) (backend.Backend, error) {
	root := config["path"]
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		root = filepath.Join(home, ".evidctl", "journal")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	return &Backend{
		root:  root,
		locks: make(map[string]*fileLock),
	}, nil
}

func (b *Backend) Type() string {
	return "local"
}

func (b *Backend) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(b.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, backend.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read journal entry %s: %w", path, err)
	}
	return f, nil
}

// Write stages the entry in a temp file and renames it into place, so
// readers never observe a partial entry.
func (b *Backend) Write(ctx context.Context, path string, data io.Reader) error {
	abs := b.abs(path)
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".evidctl-journal-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, err = io.Copy(tmp, data)
	if closeErr := tmp.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write journal entry %s: %w", path, err)
	}

	if err := os.Rename(tmpPath, abs); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to commit journal entry %s: %w", path, err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, path string) error {
	if err := os.Remove(b.abs(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete journal entry %s: %w", path, err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	var paths []string
	err := filepath.Walk(b.abs(prefix), func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries under %s: %w", prefix, err)
	}
	return paths, nil
}

func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(b.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat journal entry %s: %w", path, err)
	}
	return true, nil
}

func (b *Backend) Lock(ctx context.Context, path string, info backend.LockInfo) (backend.Lock, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lockKey := path + ".lock"
	if held, ok := b.locks[lockKey]; ok {
		return nil, &backend.LockError{Info: held.info, Err: backend.ErrLocked}
	}

	lockFile := b.abs(lockKey)
	if data, err := os.ReadFile(lockFile); err == nil {
		var holder backend.LockInfo
		if err := json.Unmarshal(data, &holder); err == nil && time.Since(holder.Created) < staleLockAge {
			return nil, &backend.LockError{Info: holder, Err: backend.ErrLocked}
		}
	}

	info.ID = uuid.NewString()
	info.Path = path
	info.Created = time.Now()

	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to encode lock info: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockFile), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	if err := os.WriteFile(lockFile, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	lock := &fileLock{backend: b, key: lockKey, file: lockFile, info: info}
	b.locks[lockKey] = lock
	return lock, nil
}

func (b *Backend) abs(path string) string {
	return filepath.Join(b.root, filepath.FromSlash(path))
}

type fileLock struct {
	backend *Backend
	key     string
	file    string
	info    backend.LockInfo
}

func (l *fileLock) ID() string {
	return l.info.ID
}

func (l *fileLock) Info() backend.LockInfo {
	return l.info
}

func (l *fileLock) Unlock(ctx context.Context) error {
	l.backend.mu.Lock()
	defer l.backend.mu.Unlock()

	delete(l.backend.locks, l.key)
	if err := os.Remove(l.file); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}
