// Package outputs holds the output sets produced by a provisioning run.
package outputs

import (
	"fmt"
	"sync"

	"github.com/zclconf/go-cty/cty"
)

// Value is a single output value. Absent marks the output of a node that was
// skipped: distinguishable from a satisfied node whose output happens to be
// empty or null.
type Value struct {
	Val    cty.Value
	Absent bool
}

// AbsentValue returns the explicit marker recorded for skipped nodes.
func AbsentValue() Value {
	return Value{Val: cty.NullVal(cty.DynamicPseudoType), Absent: true}
}

// Set maps node IDs to their output values. An entry is written exactly once,
// when its node reaches a terminal status; it is immutable afterwards.
// Readers only ever see entries of terminal nodes, so a single write barrier
// per node is the only synchronization needed.
type Set struct {
	mu      sync.RWMutex
	entries map[string]map[string]Value
}

// NewSet creates an empty output set.
func NewSet() *Set {
	return &Set{
		entries: make(map[string]map[string]Value),
	}
}

// Record stores the outputs of a satisfied node. Recording twice for the same
// node is a programming error.
func (s *Set) Record(nodeID string, vals map[string]cty.Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[nodeID]; exists {
		return fmt.Errorf("outputs for node %s already recorded", nodeID)
	}

	entry := make(map[string]Value, len(vals))
	for key, val := range vals {
		entry[key] = Value{Val: val}
	}
	s.entries[nodeID] = entry
	return nil
}

// MarkAbsent records explicit absent markers for every declared output key of
// a skipped node.
func (s *Set) MarkAbsent(nodeID string, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[nodeID]; exists {
		return fmt.Errorf("outputs for node %s already recorded", nodeID)
	}

	entry := make(map[string]Value, len(keys))
	for _, key := range keys {
		entry[key] = AbsentValue()
	}
	s.entries[nodeID] = entry
	return nil
}

// Get returns a single output value.
func (s *Set) Get(nodeID, key string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[nodeID]
	if !ok {
		return Value{}, false
	}
	val, ok := entry[key]
	return val, ok
}

// Node returns a copy of all output values recorded for a node.
func (s *Set) Node(nodeID string) (map[string]Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[nodeID]
	if !ok {
		return nil, false
	}
	out := make(map[string]Value, len(entry))
	for k, v := range entry {
		out[k] = v
	}
	return out, true
}

// Recorded reports whether a node's entry has been written.
func (s *Set) Recorded(nodeID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.entries[nodeID]
	return ok
}

// Snapshot returns a copy of the whole set, keyed by node ID.
func (s *Set) Snapshot() map[string]map[string]Value {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(map[string]map[string]Value, len(s.entries))
	for nodeID, entry := range s.entries {
		out := make(map[string]Value, len(entry))
		for k, v := range entry {
			out[k] = v
		}
		snap[nodeID] = out
	}
	return snap
}
