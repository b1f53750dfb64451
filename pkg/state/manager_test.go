package state

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/evidlab-io/evidctl/pkg/engine"
	"github.com/evidlab-io/evidctl/pkg/graph"
	"github.com/evidlab-io/evidctl/pkg/state/backend"
	"github.com/evidlab-io/evidctl/pkg/state/backend/local"
	"github.com/evidlab-io/evidctl/pkg/state/types"
)

func newTestManager(t *testing.T) Manager {
	t.Helper()

	b, err := local.NewBackend(map[string]string{"path": t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	return NewManager(b)
}

func testRecord(caseName, runID string, started time.Time) *types.RunRecord {
	return &types.RunRecord{
		ID:        runID,
		Case:      caseName,
		Template:  "capture.hcl",
		Provider:  "memory",
		Success:   true,
		StartedAt: started,
		EndedAt:   started.Add(time.Minute),
		Nodes: map[string]*engine.NodeRecord{
			"vm.analysis": {
				ID:     "vm.analysis",
				Type:   "vm",
				Name:   "analysis",
				Status: graph.StatusSatisfied,
				Outputs: map[string]interface{}{
					"instance_id": "vm.analysis/instance_id/abc",
				},
			},
		},
		Outputs: []engine.OutputValue{
			{Name: "instance_id", Value: "vm.analysis/instance_id/abc"},
		},
	}
}

func TestManager_SaveAndGetRun(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	record := testRecord("2026-0142", "run-1", time.Now().UTC().Truncate(time.Second))
	if err := m.SaveRun(ctx, record); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := m.GetRun(ctx, "2026-0142", "run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.ID != "run-1" || got.Case != "2026-0142" {
		t.Errorf("unexpected record identity: %+v", got)
	}
	if got.Provider != "memory" {
		t.Errorf("expected provider 'memory', got %q", got.Provider)
	}
	node := got.Nodes["vm.analysis"]
	if node == nil || node.Status != graph.StatusSatisfied {
		t.Errorf("expected satisfied vm.analysis node, got %+v", node)
	}
	if len(got.Outputs) != 1 || got.Outputs[0].Name != "instance_id" {
		t.Errorf("unexpected outputs: %+v", got.Outputs)
	}
}

func TestManager_SaveRun_RequiresIdentity(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if err := m.SaveRun(ctx, &types.RunRecord{ID: "run-1"}); err == nil {
		t.Error("expected error for missing case")
	}
	if err := m.SaveRun(ctx, &types.RunRecord{Case: "2026-0142"}); err == nil {
		t.Error("expected error for missing run ID")
	}
}

func TestManager_GetRun_NotFound(t *testing.T) {
	m := newTestManager(t)

	_, err := m.GetRun(context.Background(), "2026-0142", "missing")
	if !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManager_ListRuns_NewestFirst(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		record := testRecord("2026-0142", fmt.Sprintf("run-%d", i), base.Add(time.Duration(i)*time.Hour))
		if err := m.SaveRun(ctx, record); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}

	refs, err := m.ListRuns(ctx, "2026-0142")
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(refs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(refs))
	}
	for i, want := range []string{"run-2", "run-1", "run-0"} {
		if refs[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, refs[i].ID)
		}
	}
}

func TestManager_ListRuns_EmptyCase(t *testing.T) {
	m := newTestManager(t)

	refs, err := m.ListRuns(context.Background(), "2026-9999")
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("expected no runs, got %d", len(refs))
	}
}

func TestManager_LatestRun(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	_ = m.SaveRun(ctx, testRecord("2026-0142", "older", base))
	_ = m.SaveRun(ctx, testRecord("2026-0142", "newer", base.Add(time.Hour)))

	latest, err := m.LatestRun(ctx, "2026-0142")
	if err != nil {
		t.Fatalf("LatestRun failed: %v", err)
	}
	if latest.ID != "newer" {
		t.Errorf("expected 'newer', got %q", latest.ID)
	}

	_, err = m.LatestRun(ctx, "2026-9999")
	if !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty case, got %v", err)
	}
}

func TestManager_DeleteRun(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	record := testRecord("2026-0142", "run-1", time.Now())
	if err := m.SaveRun(ctx, record); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := m.DeleteRun(ctx, "2026-0142", "run-1"); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}

	_, err := m.GetRun(ctx, "2026-0142", "run-1")
	if !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestManager_ListCases(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	now := time.Now()
	_ = m.SaveRun(ctx, testRecord("2026-0144", "run-1", now))
	_ = m.SaveRun(ctx, testRecord("2026-0142", "run-1", now))
	_ = m.SaveRun(ctx, testRecord("2026-0142", "run-2", now))

	cases, err := m.ListCases(ctx)
	if err != nil {
		t.Fatalf("ListCases failed: %v", err)
	}
	if len(cases) != 2 || cases[0] != "2026-0142" || cases[1] != "2026-0144" {
		t.Errorf("unexpected cases: %v", cases)
	}
}

func TestManager_Lock(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	lock, err := m.Lock(ctx, "2026-0142", "examiner@workstation", "apply")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	_, err = m.Lock(ctx, "2026-0142", "second@workstation", "apply")
	var lockErr *backend.LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected LockError, got %v", err)
	}
	if lockErr.Info.Who != "examiner@workstation" {
		t.Errorf("expected holder 'examiner@workstation', got %q", lockErr.Info.Who)
	}

	// A different case is an independent lock scope.
	other, err := m.Lock(ctx, "2026-0144", "second@workstation", "apply")
	if err != nil {
		t.Fatalf("Lock on other case failed: %v", err)
	}
	_ = other.Unlock(ctx)

	if err := lock.Unlock(ctx); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	relock, err := m.Lock(ctx, "2026-0142", "examiner@workstation", "plan")
	if err != nil {
		t.Fatalf("relock failed: %v", err)
	}
	_ = relock.Unlock(ctx)
}

func TestRunRecord_CountNodes(t *testing.T) {
	record := &types.RunRecord{
		Nodes: map[string]*engine.NodeRecord{
			"a": {Status: graph.StatusSatisfied},
			"b": {Status: graph.StatusSatisfied},
			"c": {Status: graph.StatusFailed},
			"d": {Status: graph.StatusSkipped},
		},
	}

	counts := record.CountNodes()
	if counts.Satisfied != 2 || counts.Failed != 1 || counts.Skipped != 1 || counts.Pending != 0 {
		t.Errorf("unexpected counts: %+v", counts)
	}
}
