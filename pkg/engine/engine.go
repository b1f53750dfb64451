// Package engine provides the core orchestration for evidctl provisioning
// runs: it turns a template and a parameter set into an execution plan, and
// applies the plan against a provider.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/zclconf/go-cty/cty"

	"github.com/evidlab-io/evidctl/internal/ctxlog"
	"github.com/evidlab-io/evidctl/pkg/engine/executor"
	"github.com/evidlab-io/evidctl/pkg/engine/outputs"
	"github.com/evidlab-io/evidctl/pkg/engine/refs"
	"github.com/evidlab-io/evidctl/pkg/graph"
	"github.com/evidlab-io/evidctl/pkg/provider"
	"github.com/evidlab-io/evidctl/pkg/schema/template"
)

// Engine orchestrates provisioning runs.
type Engine struct {
	provider provider.Provider
	options  executor.Options
}

// New creates an engine over the given provider.
func New(p provider.Provider, options executor.Options) *Engine {
	return &Engine{provider: p, options: options}
}

// NodeRecord is the final record of one resource in a run, covering both
// nodes that entered the graph and resources pruned by their conditions.
type NodeRecord struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	Name       string                 `json:"name"`
	Variant    string                 `json:"variant,omitempty"`
	Status     graph.Status           `json:"status"`
	SkipReason graph.SkipReason       `json:"skip_reason,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Outputs    map[string]interface{} `json:"outputs,omitempty"`
	Duration   time.Duration          `json:"duration,omitempty"`
}

// OutputValue is an evaluated top-level template output. Absent marks an
// output whose value could not be produced because a resource it reads was
// skipped, failed, or never scheduled.
type OutputValue struct {
	Name   string      `json:"name"`
	Value  interface{} `json:"value,omitempty"`
	Absent bool        `json:"absent,omitempty"`
}

// RunResult is the full outcome of one provisioning run.
type RunResult struct {
	RunID      string                 `json:"run_id"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt time.Time              `json:"finished_at"`
	Success    bool                   `json:"success"`
	Cancelled  bool                   `json:"cancelled,omitempty"`
	Nodes      map[string]*NodeRecord `json:"nodes"`
	Outputs    []OutputValue          `json:"outputs,omitempty"`
	Errors     []string               `json:"errors,omitempty"`
}

// Plan validates the template against the parameter set and builds the
// execution plan. See BuildPlan.
func (e *Engine) Plan(tmpl *template.Template, params map[string]cty.Value) (*Plan, error) {
	return BuildPlan(tmpl, params)
}

// Apply executes a plan. Condition-skipped resources are seeded as absent
// markers before any node runs, so expressions reading their outputs observe
// the absent value rather than an error. The returned RunResult covers every
// resource in the template, applied or not.
func (e *Engine) Apply(ctx context.Context, plan *Plan) (*RunResult, error) {
	log := ctxlog.FromContext(ctx)
	runID := uuid.NewString()
	startedAt := time.Now()

	log.Info("starting run",
		"run", runID,
		"provider", e.provider.Name(),
		"nodes", len(plan.Graph.Nodes),
		"skipped", len(plan.Skipped))

	set := outputs.NewSet()
	for _, s := range plan.Skipped {
		_ = set.MarkAbsent(s.ID, s.OutputKeys)
	}

	exec := executor.New(e.provider, e.options)
	execResult, err := exec.Execute(ctx, plan.Graph, plan.Groups, plan.Params, set)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID:      runID,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		Success:    execResult.Success,
		Cancelled:  execResult.Cancelled,
		Nodes:      make(map[string]*NodeRecord),
	}
	for _, execErr := range execResult.Errors {
		result.Errors = append(result.Errors, execErr.Error())
	}

	for _, id := range plan.Graph.SortedIDs() {
		node := plan.Graph.Node(id)
		record := &NodeRecord{
			ID:         node.ID,
			Type:       node.Type,
			Name:       node.Name,
			Variant:    node.Variant,
			Status:     node.Status,
			SkipReason: node.SkipReason,
		}
		if nr := execResult.NodeResults[id]; nr != nil {
			record.Outputs = nr.Outputs
			record.Duration = nr.Duration
			if nr.Error != nil {
				record.Error = nr.Error.Error()
			}
		}
		result.Nodes[id] = record
	}
	for _, s := range plan.Skipped {
		result.Nodes[s.ID] = &NodeRecord{
			ID:         s.ID,
			Type:       s.Type,
			Name:       s.Name,
			Status:     graph.StatusSkipped,
			SkipReason: graph.SkipConditionFalse,
		}
	}

	result.Outputs = e.evaluateOutputs(plan, set)

	log.Info("run finished",
		"run", runID,
		"success", result.Success,
		"satisfied", execResult.Satisfied,
		"failed", execResult.Failed,
		"skipped", execResult.Skipped,
		"duration", execResult.Duration)

	return result, nil
}

// evaluateOutputs computes top-level outputs against the final output set.
// An output reading a node with no recorded entry (failed, or unscheduled
// after cancellation) is reported absent rather than erroring the run.
func (e *Engine) evaluateOutputs(plan *Plan, set *outputs.Set) []OutputValue {
	if len(plan.Template.Outputs) == 0 {
		return nil
	}

	evalCtx := refs.EvalContext(plan.Params, set)
	results := make([]OutputValue, 0, len(plan.Template.Outputs))
	for i := range plan.Template.Outputs {
		out := &plan.Template.Outputs[i]

		resolvable := true
		found, err := refs.Discover(out.ValueExpr)
		if err != nil {
			resolvable = false
		} else {
			for _, ref := range found {
				if !set.Recorded(ref.NodeID) {
					resolvable = false
					break
				}
			}
		}
		if !resolvable {
			results = append(results, OutputValue{Name: out.Name, Absent: true})
			continue
		}

		val, diags := out.ValueExpr.Value(evalCtx)
		if diags.HasErrors() || val.IsNull() {
			results = append(results, OutputValue{Name: out.Name, Absent: true})
			continue
		}
		results = append(results, OutputValue{Name: out.Name, Value: template.GoValue(val)})
	}
	return results
}
