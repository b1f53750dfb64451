package cli

import (
	"testing"
)

func TestNewPlanCmd(t *testing.T) {
	cmd := newPlanCmd()

	if cmd.Use != "plan" {
		t.Errorf("expected use 'plan', got '%s'", cmd.Use)
	}

	for _, flag := range []string{"file", "params", "var", "environment"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("expected --%s flag", flag)
		}
	}
}

func TestPlanCmd_ValidTemplate(t *testing.T) {
	path := writeTemplate(t, validTemplate)

	cmd := newPlanCmd()
	cmd.SetArgs([]string{"-f", path, "--var", "case_id=2026-0142"})

	if err := cmd.Execute(); err != nil {
		t.Errorf("expected plan to succeed, got error: %v", err)
	}
}

func TestPlanCmd_MissingParameter(t *testing.T) {
	path := writeTemplate(t, validTemplate)

	cmd := newPlanCmd()
	cmd.SetArgs([]string{"-f", path})

	if err := cmd.Execute(); err == nil {
		t.Error("expected error for missing case_id")
	}
}

func TestPlanCmd_UnknownReference(t *testing.T) {
	path := writeTemplate(t, `
resource "vm" "analysis" {
  outputs = ["instance_id"]

  properties {
    network = resource.network.missing.outputs.network_id
  }
}
`)

	cmd := newPlanCmd()
	cmd.SetArgs([]string{"-f", path})

	if err := cmd.Execute(); err == nil {
		t.Error("expected error for unknown resource reference")
	}
}
