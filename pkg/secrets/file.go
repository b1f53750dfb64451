package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileProvider serves secrets from an in-memory map, typically loaded from a
// YAML file. Mutations stay in memory; they are not written back.
type FileProvider struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewFileProvider creates a file provider over the given map.
func NewFileProvider(secrets map[string]string) *FileProvider {
	if secrets == nil {
		secrets = make(map[string]string)
	}
	return &FileProvider{secrets: secrets}
}

// LoadFileProvider reads a YAML file of string key/value pairs.
func LoadFileProvider(path string) (*FileProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	secrets := make(map[string]string)
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("failed to parse secrets file %s: %w", path, err)
	}
	return NewFileProvider(secrets), nil
}

func (p *FileProvider) Name() string {
	return "file"
}

func (p *FileProvider) Get(ctx context.Context, key string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if value, ok := p.secrets[key]; ok {
		return value, nil
	}
	return "", ErrSecretNotFound
}

func (p *FileProvider) GetBatch(ctx context.Context, keys []string) (map[string]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	results := make(map[string]string)
	for _, key := range keys {
		if value, ok := p.secrets[key]; ok {
			results[key] = value
		}
	}
	return results, nil
}

func (p *FileProvider) List(ctx context.Context, prefix string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var keys []string
	for key := range p.secrets {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (p *FileProvider) Set(ctx context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.secrets[key] = value
	return nil
}

func (p *FileProvider) Delete(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.secrets, key)
	return nil
}
