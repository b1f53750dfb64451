// Package types defines the persisted journal record shapes.
package types

import (
	"time"

	"github.com/evidlab-io/evidctl/pkg/engine"
	"github.com/evidlab-io/evidctl/pkg/graph"
)

// RunRecord is the journal entry for one provisioning run.
type RunRecord struct {
	// ID is the run identifier, assigned by the engine.
	ID string `json:"id"`

	// Case is the evidence case the run belongs to.
	Case string `json:"case"`

	// Template is the template source path the run was built from.
	Template string `json:"template"`

	// Provider names the provider the run was applied with.
	Provider string `json:"provider"`

	Success   bool      `json:"success"`
	Cancelled bool      `json:"cancelled,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	// Parameters holds the run's parameter values. Sensitive variables are
	// stored redacted.
	Parameters map[string]interface{} `json:"parameters,omitempty"`

	// Nodes records the terminal status and outputs of every resource.
	Nodes map[string]*engine.NodeRecord `json:"nodes"`

	// Outputs holds the evaluated top-level template outputs.
	Outputs []engine.OutputValue `json:"outputs,omitempty"`

	Errors []string `json:"errors,omitempty"`
}

// RedactedValue replaces sensitive parameter values in the journal.
const RedactedValue = "(sensitive)"

// RunRef is a lightweight run listing entry.
type RunRef struct {
	ID        string    `json:"id"`
	Case      string    `json:"case"`
	Success   bool      `json:"success"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Ref returns the listing entry for a record.
func (r *RunRecord) Ref() RunRef {
	return RunRef{
		ID:        r.ID,
		Case:      r.Case,
		Success:   r.Success,
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
	}
}

// Counts summarizes a run's node statuses.
type Counts struct {
	Satisfied int
	Failed    int
	Skipped   int
	Pending   int
}

// CountNodes tallies the record's node statuses.
func (r *RunRecord) CountNodes() Counts {
	var c Counts
	for _, node := range r.Nodes {
		switch node.Status {
		case graph.StatusSatisfied:
			c.Satisfied++
		case graph.StatusFailed:
			c.Failed++
		case graph.StatusSkipped:
			c.Skipped++
		default:
			c.Pending++
		}
	}
	return c
}
