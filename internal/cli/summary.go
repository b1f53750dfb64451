package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/evidlab-io/evidctl/pkg/engine"
	"github.com/evidlab-io/evidctl/pkg/graph"
)

// printRunSummary renders the per-resource outcome table and the evaluated
// top-level outputs for a finished run.
func printRunSummary(w io.Writer, result *engine.RunResult) {
	ids := make([]string, 0, len(result.Nodes))
	for id := range result.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintln(w)
	for _, id := range ids {
		rec := result.Nodes[id]
		line := fmt.Sprintf("%s %-11s %s", statusIcon(rec), rec.Status, id)
		if rec.Variant != "" {
			line += fmt.Sprintf(" (variant %q)", rec.Variant)
		}
		if rec.SkipReason != "" {
			line += fmt.Sprintf(" [%s]", rec.SkipReason)
		}
		if rec.Duration > 0 {
			line += fmt.Sprintf(" (%s)", rec.Duration.Round(time.Millisecond))
		}
		fmt.Fprintln(w, line)
		if rec.Error != "" {
			fmt.Fprintf(w, "      %s\n", rec.Error)
		}
	}

	if len(result.Outputs) > 0 {
		fmt.Fprintln(w, "\nOutputs:")
		for _, out := range result.Outputs {
			if out.Absent {
				fmt.Fprintf(w, "  %s = (absent)\n", out.Name)
			} else {
				fmt.Fprintf(w, "  %s = %v\n", out.Name, out.Value)
			}
		}
	}

	counts := countStatuses(result)
	elapsed := result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond)
	fmt.Fprintf(w, "\nRun %s: %d satisfied, %d failed, %d skipped in %s\n",
		result.RunID, counts[graph.StatusSatisfied], counts[graph.StatusFailed], counts[graph.StatusSkipped], elapsed)
}

func countStatuses(result *engine.RunResult) map[graph.Status]int {
	counts := map[graph.Status]int{}
	for _, rec := range result.Nodes {
		counts[rec.Status]++
	}
	return counts
}

func statusIcon(rec *engine.NodeRecord) string {
	switch rec.Status {
	case graph.StatusSatisfied:
		return "✓"
	case graph.StatusFailed:
		return "✗"
	case graph.StatusSkipped:
		return "-"
	default:
		return "·"
	}
}
