// Package state persists the run journal.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/evidlab-io/evidctl/pkg/state/backend"
	"github.com/evidlab-io/evidctl/pkg/state/types"
)

// Manager provides high-level journal operations over a backend.
type Manager interface {
	// Run operations, scoped by case.
	SaveRun(ctx context.Context, record *types.RunRecord) error
	GetRun(ctx context.Context, caseName, runID string) (*types.RunRecord, error)
	ListRuns(ctx context.Context, caseName string) ([]types.RunRef, error)
	DeleteRun(ctx context.Context, caseName, runID string) error
	LatestRun(ctx context.Context, caseName string) (*types.RunRecord, error)

	// ListCases returns every case with at least one journaled run.
	ListCases(ctx context.Context) ([]string, error)

	// Lock serializes runs for one case.
	Lock(ctx context.Context, caseName, who, operation string) (backend.Lock, error)

	Backend() backend.Backend
}

type manager struct {
	backend backend.Backend
}

// NewManager creates a journal manager over the given backend.
func NewManager(b backend.Backend) Manager {
	return &manager{backend: b}
}

// NewManagerFromConfig creates a journal manager from backend configuration.
func NewManagerFromConfig(config backend.Config) (Manager, error) {
	b, err := backend.Create(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal backend: %w", err)
	}
	return NewManager(b), nil
}

func (m *manager) Backend() backend.Backend {
	return m.backend
}

func (m *manager) SaveRun(ctx context.Context, record *types.RunRecord) error {
	if record.Case == "" {
		return fmt.Errorf("run record has no case")
	}
	if record.ID == "" {
		return fmt.Errorf("run record has no ID")
	}
	return writeJSON(ctx, m.backend, runPath(record.Case, record.ID), record)
}

func (m *manager) GetRun(ctx context.Context, caseName, runID string) (*types.RunRecord, error) {
	return readJSON[types.RunRecord](ctx, m.backend, runPath(caseName, runID))
}

// ListRuns returns the case's runs, newest first.
func (m *manager) ListRuns(ctx context.Context, caseName string) ([]types.RunRef, error) {
	prefix := path.Join("cases", caseName, "runs") + "/"
	paths, err := m.backend.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var refs []types.RunRef
	for _, p := range paths {
		if !strings.HasSuffix(p, ".run.json") {
			continue
		}
		runID := strings.TrimSuffix(path.Base(p), ".run.json")
		record, err := m.GetRun(ctx, caseName, runID)
		if err != nil {
			continue
		}
		refs = append(refs, record.Ref())
	}

	sort.Slice(refs, func(i, j int) bool {
		return refs[i].StartedAt.After(refs[j].StartedAt)
	})
	return refs, nil
}

func (m *manager) DeleteRun(ctx context.Context, caseName, runID string) error {
	return m.backend.Delete(ctx, runPath(caseName, runID))
}

func (m *manager) LatestRun(ctx context.Context, caseName string) (*types.RunRecord, error) {
	refs, err := m.ListRuns(ctx, caseName)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, backend.ErrNotFound
	}
	return m.GetRun(ctx, caseName, refs[0].ID)
}

func (m *manager) ListCases(ctx context.Context) ([]string, error) {
	paths, err := m.backend.List(ctx, "cases/")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, p := range paths {
		// cases/<case>/runs/<id>.run.json
		parts := strings.Split(p, "/")
		if len(parts) >= 2 && parts[0] == "cases" {
			seen[parts[1]] = true
		}
	}

	cases := make([]string, 0, len(seen))
	for name := range seen {
		cases = append(cases, name)
	}
	sort.Strings(cases)
	return cases, nil
}

func (m *manager) Lock(ctx context.Context, caseName, who, operation string) (backend.Lock, error) {
	return m.backend.Lock(ctx, path.Join("cases", caseName), backend.LockInfo{
		Who:       who,
		Operation: operation,
	})
}

func runPath(caseName, runID string) string {
	return path.Join("cases", caseName, "runs", runID+".run.json")
}

func readJSON[T any](ctx context.Context, b backend.Backend, p string) (*T, error) {
	reader, err := b.Read(ctx, p)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var result T
	if err := json.NewDecoder(reader).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode journal entry %s: %w", p, err)
	}
	return &result, nil
}

func writeJSON(ctx context.Context, b backend.Backend, p string, data interface{}) error {
	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode journal entry %s: %w", p, err)
	}
	return b.Write(ctx, p, bytes.NewReader(content))
}
