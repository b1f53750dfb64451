// Package backend defines the journal storage interface and the registry of
// available backend implementations.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a journal entry does not exist.
var ErrNotFound = errors.New("journal entry not found")

// ErrLocked is returned when a lock is already held.
var ErrLocked = errors.New("journal is locked")

// Backend is a blob store holding the run journal. Paths are forward-slash
// separated and relative to the backend's root.
type Backend interface {
	// Type returns the backend type name (local, s3, gcs, azurerm).
	Type() string

	// Read opens a journal entry. Returns ErrNotFound when absent.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write stores a journal entry, replacing any existing one.
	Write(ctx context.Context, path string, data io.Reader) error

	// Delete removes an entry. Deleting a missing entry is not an error.
	Delete(ctx context.Context, path string) error

	// List returns every entry path under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether an entry is present.
	Exists(ctx context.Context, path string) (bool, error)

	// Lock acquires an advisory lock on a path. A held lock surfaces as a
	// LockError wrapping ErrLocked.
	Lock(ctx context.Context, path string, info LockInfo) (Lock, error)
}

// Lock is a held journal lock.
type Lock interface {
	ID() string
	Unlock(ctx context.Context) error
	Info() LockInfo
}

// LockInfo describes a lock holder.
type LockInfo struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Who       string    `json:"who"`
	Operation string    `json:"operation"`
	Created   time.Time `json:"created"`
	Expires   time.Time `json:"expires,omitempty"`
}

// LockError reports a failed lock acquisition with the holder's info.
type LockError struct {
	Info LockInfo
	Err  error
}

func (e *LockError) Error() string {
	if e.Info.Who != "" {
		return fmt.Sprintf("locked by %s (%s) since %s", e.Info.Who, e.Info.Operation, e.Info.Created.Format(time.RFC3339))
	}
	return e.Err.Error()
}

func (e *LockError) Unwrap() error {
	return e.Err
}

// Config selects and configures a backend.
type Config struct {
	// Type names a registered backend.
	Type string `yaml:"type" json:"type"`

	// Settings holds backend-specific configuration.
	Settings map[string]string `yaml:"settings" json:"settings"`
}

// Factory constructs a backend from its settings.
type Factory func(config map[string]string) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend factory available under the given name.
// It panics on duplicate registration.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("backend %q registered twice", name))
	}
	registry[name] = factory
}

// Create instantiates a backend from its config.
func Create(config Config) (Backend, error) {
	registryMu.RLock()
	factory, ok := registry[config.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown backend type %q (registered: %v)", config.Type, Names())
	}
	return factory(config.Settings)
}

// Names lists the registered backend types, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
