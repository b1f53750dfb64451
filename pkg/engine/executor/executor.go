// Package executor applies execution plans against a provider.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zclconf/go-cty/cty"

	"github.com/evidlab-io/evidctl/internal/ctxlog"
	"github.com/evidlab-io/evidctl/pkg/engine/outputs"
	"github.com/evidlab-io/evidctl/pkg/engine/refs"
	"github.com/evidlab-io/evidctl/pkg/errors"
	"github.com/evidlab-io/evidctl/pkg/graph"
	"github.com/evidlab-io/evidctl/pkg/provider"
	"github.com/evidlab-io/evidctl/pkg/schema/template"
)

// Result contains the outcome of one run.
type Result struct {
	Success   bool
	Cancelled bool
	Duration  time.Duration
	Satisfied int
	Failed    int
	Skipped   int
	Errors    []error

	NodeResults map[string]*NodeResult
}

// NodeResult contains the outcome for a single node.
type NodeResult struct {
	NodeID     string
	Status     graph.Status
	SkipReason graph.SkipReason
	Duration   time.Duration
	Error      error
	Outputs    map[string]interface{}
}

// Options configures the executor.
type Options struct {
	// Parallelism caps the number of concurrent provider calls.
	Parallelism int
}

// DefaultOptions returns default executor options.
func DefaultOptions() Options {
	return Options{Parallelism: 10}
}

// Executor applies a graph's nodes wave by wave. Every node in a wave
// depends only on nodes in earlier waves, so a wave's members run
// concurrently up to the parallelism cap.
type Executor struct {
	provider provider.Provider
	options  Options
}

// New creates an executor over the given provider.
func New(p provider.Provider, options Options) *Executor {
	if options.Parallelism <= 0 {
		options.Parallelism = 10
	}
	return &Executor{provider: p, options: options}
}

// Execute applies the graph in wave order, recording each node's outputs
// into set as it completes. A node whose dependency failed (or was skipped
// for a failed dependency) is skipped without calling the provider, and the
// skip cascades downstream. Cancellation lets in-flight applies finish and
// schedules nothing further.
func (e *Executor) Execute(ctx context.Context, g *graph.Graph, groups [][]string, params map[string]cty.Value, set *outputs.Set) (*Result, error) {
	startTime := time.Now()
	log := ctxlog.FromContext(ctx)

	result := &Result{
		Success:     true,
		NodeResults: make(map[string]*NodeResult),
	}

	var mu sync.Mutex
	sem := make(chan struct{}, e.options.Parallelism)

	for _, group := range groups {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		var wg sync.WaitGroup
		for _, id := range group {
			node := g.Node(id)

			if failedDep, ok := e.findFailedDependency(node, g); ok {
				e.skipNode(node, set, result, &mu, failedDep)
				continue
			}

			node.Status = graph.StatusReady
			wg.Add(1)
			sem <- struct{}{}

			go func(node *graph.Node) {
				defer wg.Done()
				defer func() { <-sem }()

				nodeResult := e.applyNode(ctx, node, params, set)

				mu.Lock()
				result.NodeResults[node.ID] = nodeResult
				if nodeResult.Error != nil {
					result.Failed++
					result.Success = false
					result.Errors = append(result.Errors, nodeResult.Error)
				} else {
					result.Satisfied++
				}
				mu.Unlock()

				if nodeResult.Error != nil {
					log.Error("node failed", "node", node.ID, "error", nodeResult.Error)
				} else {
					log.Info("node satisfied", "node", node.ID, "duration", nodeResult.Duration)
				}
			}(node)
		}
		wg.Wait()
	}

	if result.Cancelled {
		result.Success = false
		result.Errors = append(result.Errors,
			errors.Wrap(errors.ErrCodeCancelled, "run cancelled before completion", ctx.Err()))
	}

	result.Duration = time.Since(startTime)
	return result, nil
}

// findFailedDependency reports whether any of the node's dependencies ended
// in failure or was itself skipped for an upstream failure.
func (e *Executor) findFailedDependency(node *graph.Node, g *graph.Graph) (string, bool) {
	for _, depID := range node.DependsOn {
		dep := g.Node(depID)
		if dep == nil {
			continue
		}
		if dep.Status == graph.StatusFailed {
			return depID, true
		}
		if dep.Status == graph.StatusSkipped && dep.SkipReason == graph.SkipUpstreamFailure {
			return depID, true
		}
	}
	return "", false
}

// skipNode marks a node skipped for an upstream failure. Its declared
// outputs become absent markers so downstream expressions still evaluate.
func (e *Executor) skipNode(node *graph.Node, set *outputs.Set, result *Result, mu *sync.Mutex, failedDep string) {
	node.Status = graph.StatusSkipped
	node.SkipReason = graph.SkipUpstreamFailure
	_ = set.MarkAbsent(node.ID, node.OutputKeys)

	mu.Lock()
	result.NodeResults[node.ID] = &NodeResult{
		NodeID:     node.ID,
		Status:     graph.StatusSkipped,
		SkipReason: graph.SkipUpstreamFailure,
		Error:      fmt.Errorf("dependency %s failed", failedDep),
	}
	result.Skipped++
	result.Success = false
	mu.Unlock()
}

// applyNode resolves a node's properties and hands them to the provider.
func (e *Executor) applyNode(ctx context.Context, node *graph.Node, params map[string]cty.Value, set *outputs.Set) *NodeResult {
	start := time.Now()
	node.Status = graph.StatusApplying

	nodeResult := &NodeResult{NodeID: node.ID}

	fail := func(err error) *NodeResult {
		node.Status = graph.StatusFailed
		node.Err = err
		nodeResult.Status = graph.StatusFailed
		nodeResult.Error = err
		nodeResult.Duration = time.Since(start)
		return nodeResult
	}

	props, err := e.resolveProperties(node, params, set)
	if err != nil {
		return fail(err)
	}

	outs, err := e.provider.Apply(ctx, provider.Request{
		NodeID:     node.ID,
		Type:       node.Type,
		Name:       node.Name,
		Properties: props,
		OutputKeys: node.OutputKeys,
	})
	if err != nil {
		return fail(errors.ProviderError(e.provider.Name(), node.ID, err))
	}

	vals, err := e.convertOutputs(node, outs)
	if err != nil {
		return fail(err)
	}
	if err := set.Record(node.ID, vals); err != nil {
		return fail(err)
	}

	node.Status = graph.StatusSatisfied
	nodeResult.Status = graph.StatusSatisfied
	nodeResult.Outputs = outs
	nodeResult.Duration = time.Since(start)
	return nodeResult
}

// resolveProperties evaluates the node's property expressions with every
// reference substituted by the producer's recorded value. A reference whose
// producer has no recorded entry at this point is a scheduling bug and
// aborts the node.
func (e *Executor) resolveProperties(node *graph.Node, params map[string]cty.Value, set *outputs.Set) (map[string]interface{}, error) {
	for _, expr := range node.Properties {
		found, err := refs.Discover(expr)
		if err != nil {
			return nil, err
		}
		for _, ref := range found {
			if !set.Recorded(ref.NodeID) {
				return nil, &refs.UnresolvedReferenceError{
					Node:     ref.NodeID,
					Output:   ref.Output,
					Consumer: node.ID,
				}
			}
		}
	}

	evalCtx := refs.EvalContext(params, set)
	props := make(map[string]interface{}, len(node.Properties))
	for key, expr := range node.Properties {
		val, diags := expr.Value(evalCtx)
		if diags.HasErrors() {
			return nil, errors.Wrap(errors.ErrCodeValidation,
				fmt.Sprintf("failed to evaluate property %q of %s", key, node.ID),
				fmt.Errorf("%s", diags.Error()))
		}
		props[key] = template.GoValue(val)
	}
	return props, nil
}

// convertOutputs checks the provider populated every declared key and
// converts the values for recording.
func (e *Executor) convertOutputs(node *graph.Node, outs map[string]interface{}) (map[string]cty.Value, error) {
	vals := make(map[string]cty.Value, len(node.OutputKeys))
	for _, key := range node.OutputKeys {
		raw, ok := outs[key]
		if !ok {
			return nil, errors.New(errors.ErrCodeProvider,
				fmt.Sprintf("provider %s did not populate declared output %q of %s", e.provider.Name(), key, node.ID))
		}
		val, err := template.CtyValue(raw)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeProvider,
				fmt.Sprintf("provider %s returned unusable output %q of %s", e.provider.Name(), key, node.ID), err)
		}
		vals[key] = val
	}
	return vals, nil
}
