package secrets

import (
	"context"
	"os"
	"strings"
)

// DefaultEnvPrefix is the environment variable prefix the env provider
// stores secrets under.
const DefaultEnvPrefix = "EVIDCTL_SECRET_"

// EnvProvider reads secrets from environment variables. A key "db-password"
// maps to EVIDCTL_SECRET_DB_PASSWORD; failing that, the key is tried
// verbatim as a variable name.
type EnvProvider struct {
	prefix string
}

// NewEnvProvider creates an env provider with the default prefix.
func NewEnvProvider() *EnvProvider {
	return NewEnvProviderWithPrefix(DefaultEnvPrefix)
}

// NewEnvProviderWithPrefix creates an env provider with a custom prefix.
func NewEnvProviderWithPrefix(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix}
}

func (p *EnvProvider) Name() string {
	return "env"
}

func (p *EnvProvider) Get(ctx context.Context, key string) (string, error) {
	if value, ok := os.LookupEnv(p.envName(key)); ok {
		return value, nil
	}
	if value, ok := os.LookupEnv(key); ok {
		return value, nil
	}
	return "", ErrSecretNotFound
}

func (p *EnvProvider) GetBatch(ctx context.Context, keys []string) (map[string]string, error) {
	results := make(map[string]string)
	for _, key := range keys {
		value, err := p.Get(ctx, key)
		if err != nil {
			continue
		}
		results[key] = value
	}
	return results, nil
}

// List returns the keys of all prefixed secrets whose key starts with the
// given prefix.
func (p *EnvProvider) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for _, entry := range os.Environ() {
		name, _, _ := strings.Cut(entry, "=")
		if !strings.HasPrefix(name, p.prefix) {
			continue
		}
		key := p.keyName(strings.TrimPrefix(name, p.prefix))
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (p *EnvProvider) Set(ctx context.Context, key, value string) error {
	return os.Setenv(p.envName(key), value)
}

func (p *EnvProvider) Delete(ctx context.Context, key string) error {
	return os.Unsetenv(p.envName(key))
}

func (p *EnvProvider) envName(key string) string {
	return p.prefix + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

func (p *EnvProvider) keyName(envSuffix string) string {
	return strings.ToLower(strings.ReplaceAll(envSuffix, "_", "-"))
}
