// Package memory implements an in-process provider that synthesizes
// deterministic outputs instead of touching real infrastructure. It backs
// plan dry-runs and the engine's own tests.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"

	"github.com/evidlab-io/evidctl/pkg/provider"
)

func init() {
	provider.Register("memory", func(config map[string]string) (provider.Provider, error) {
		return New(), nil
	})
}

// Provider records every applied request and synthesizes outputs that are a
// pure function of the request, so repeated applies return identical values.
type Provider struct {
	mu      sync.Mutex
	applied map[string]map[string]interface{}

	// FailNodes maps node IDs to errors Apply should return, for
	// exercising failure paths.
	FailNodes map[string]error
}

// New creates an empty memory provider.
func New() *Provider {
	return &Provider{
		applied:   make(map[string]map[string]interface{}),
		FailNodes: make(map[string]error),
	}
}

func (p *Provider) Name() string {
	return "memory"
}

// Apply synthesizes one deterministic string output per declared key. A node
// listed in FailNodes returns its configured error instead.
func (p *Provider) Apply(ctx context.Context, req provider.Request) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.FailNodes[req.NodeID]; err != nil {
		return nil, err
	}

	if existing, ok := p.applied[req.NodeID]; ok {
		return existing, nil
	}

	digest := requestDigest(req)
	outputs := make(map[string]interface{}, len(req.OutputKeys))
	for _, key := range req.OutputKeys {
		outputs[key] = fmt.Sprintf("%s/%s/%s", req.NodeID, key, digest[:12])
	}
	p.applied[req.NodeID] = outputs
	return outputs, nil
}

// Applied returns the node IDs applied so far, sorted.
func (p *Provider) Applied() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.applied))
	for id := range p.applied {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// requestDigest hashes the request's identity and properties so synthesized
// outputs vary with the inputs but never between runs.
func requestDigest(req provider.Request) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n", req.NodeID)
	keys := make([]string, 0, len(req.Properties))
	for k := range req.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v\n", k, req.Properties[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}
