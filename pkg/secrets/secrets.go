// Package secrets resolves secret references in parameter values. Secrets
// live in pluggable providers consulted in priority order, with a
// process-local cache in front.
package secrets

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/evidlab-io/evidctl/pkg/errors"
)

// ErrSecretNotFound is returned when no provider holds the requested secret.
var ErrSecretNotFound = errors.New(errors.ErrCodeSecret, "secret not found")

// Provider is a source of secrets.
type Provider interface {
	Name() string
	Get(ctx context.Context, key string) (string, error)
	GetBatch(ctx context.Context, keys []string) (map[string]string, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Manager resolves secrets across registered providers.
type Manager struct {
	mu        sync.RWMutex
	providers map[string]Provider
	priority  []string
	cache     *secretCache
}

// NewManager creates an empty manager with no providers.
func NewManager() *Manager {
	return &Manager{
		providers: make(map[string]Provider),
		priority:  []string{},
		cache:     newSecretCache(),
	}
}

// DefaultManager creates a manager with the environment provider registered.
func DefaultManager() *Manager {
	m := NewManager()
	m.RegisterProvider(NewEnvProvider())
	return m
}

// RegisterProvider adds a provider, appending it to the priority order.
func (m *Manager) RegisterProvider(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[p.Name()] = p
	m.priority = append(m.priority, p.Name())
}

// SetPriority replaces the provider consultation order.
func (m *Manager) SetPriority(order []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priority = order
}

// Get resolves a secret, consulting providers in priority order.
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	if value, ok := m.cache.get(key); ok {
		return value, nil
	}

	m.mu.RLock()
	order := make([]string, len(m.priority))
	copy(order, m.priority)
	m.mu.RUnlock()

	for _, name := range order {
		m.mu.RLock()
		p, ok := m.providers[name]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		value, err := p.Get(ctx, key)
		if err == nil {
			m.cache.set(key, value)
			return value, nil
		}
	}
	return "", fmt.Errorf("secret %q: %w", key, ErrSecretNotFound)
}

// GetFromProvider resolves a secret from one named provider, bypassing the
// priority order.
func (m *Manager) GetFromProvider(ctx context.Context, providerName, key string) (string, error) {
	m.mu.RLock()
	p, ok := m.providers[providerName]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown secret provider %q", providerName)
	}
	return p.Get(ctx, key)
}

// GetBatch resolves multiple secrets, silently omitting missing ones.
func (m *Manager) GetBatch(ctx context.Context, keys []string) (map[string]string, error) {
	results := make(map[string]string)
	for _, key := range keys {
		value, err := m.Get(ctx, key)
		if err != nil {
			continue
		}
		results[key] = value
	}
	return results, nil
}

// ClearCache drops all cached secret values.
func (m *Manager) ClearCache() {
	m.cache.clear()
}

// ResolveSecrets walks a data structure and substitutes every
// ${secret:key} or ${secret:provider:key} reference, including references
// embedded inside longer strings.
func (m *Manager) ResolveSecrets(ctx context.Context, data map[string]interface{}) (map[string]interface{}, error) {
	resolved, err := m.resolveValue(ctx, data)
	if err != nil {
		return nil, err
	}
	return resolved.(map[string]interface{}), nil
}

func (m *Manager) resolveValue(ctx context.Context, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return m.resolveString(ctx, v)
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, item := range v {
			resolved, err := m.resolveValue(ctx, item)
			if err != nil {
				return nil, err
			}
			result[key] = resolved
		}
		return result, nil
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			resolved, err := m.resolveValue(ctx, item)
			if err != nil {
				return nil, err
			}
			result[i] = resolved
		}
		return result, nil
	default:
		return value, nil
	}
}

const secretRefPrefix = "${secret:"

func (m *Manager) resolveString(ctx context.Context, s string) (string, error) {
	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, secretRefPrefix)
		if start < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:start])
		rest = rest[start+len(secretRefPrefix):]

		end := strings.Index(rest, "}")
		if end < 0 {
			return "", fmt.Errorf("unclosed secret reference in %q", s)
		}
		ref := rest[:end]
		rest = rest[end+1:]

		var value string
		var err error
		if providerName, key, found := strings.Cut(ref, ":"); found {
			value, err = m.GetFromProvider(ctx, providerName, key)
		} else {
			value, err = m.Get(ctx, ref)
		}
		if err != nil {
			return "", fmt.Errorf("failed to resolve secret reference %q: %w", ref, err)
		}
		b.WriteString(value)
	}
}

// secretCache is a concurrency-safe value cache.
type secretCache struct {
	mu    sync.RWMutex
	items map[string]string
}

func newSecretCache() *secretCache {
	return &secretCache{items: make(map[string]string)}
}

func (c *secretCache) get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.items[key]
	return value, ok
}

func (c *secretCache) set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}

func (c *secretCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]string)
}
