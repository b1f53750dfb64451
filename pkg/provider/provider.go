// Package provider defines the interface between the provisioning engine and
// the systems that actually materialize resources. Providers are opaque to
// the engine: it hands over a resource type and fully resolved properties and
// receives outputs or an error.
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Request carries everything a provider needs to apply one node.
type Request struct {
	// NodeID is the "type.name" identity of the node, for logging and
	// idempotency keys.
	NodeID string

	// Type is the resource-type tag from the template.
	Type string

	// Name is the resource name from the template.
	Name string

	// Properties holds the node's property values with every reference
	// already substituted. Values are plain Go types (string, int64,
	// float64, bool, []interface{}, map[string]interface{}).
	Properties map[string]interface{}

	// OutputKeys lists the output names the template declares for this
	// node. The provider must populate every one of them.
	OutputKeys []string
}

// Provider applies resources. Apply must be idempotent: applying the same
// request twice yields the same outputs without side effects beyond the
// first application.
type Provider interface {
	// Name identifies the provider for logs and run records.
	Name() string

	// Apply materializes one resource and returns its outputs keyed by the
	// declared output names.
	Apply(ctx context.Context, req Request) (map[string]interface{}, error)
}

// Factory constructs a provider from its configuration map.
type Factory func(config map[string]string) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a provider factory available under the given name.
// It panics on duplicate registration.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("provider %q registered twice", name))
	}
	registry[name] = factory
}

// Create instantiates a registered provider.
func Create(name string, config map[string]string) (Provider, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (registered: %v)", name, Names())
	}
	return factory(config)
}

// Names lists the registered provider names, sorted.
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
