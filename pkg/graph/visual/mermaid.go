// Package visual renders dependency graphs as Mermaid flowcharts. It operates
// directly on *graph.Graph so both the graph command and run summaries can use
// it without pulling in the engine.
package visual

import (
	"fmt"
	"sort"
	"strings"

	"github.com/evidlab-io/evidctl/pkg/graph"
)

// MermaidOptions controls how a graph is rendered to a Mermaid flowchart.
type MermaidOptions struct {
	// Direction is the flowchart direction: "TD" (top-down) or "LR"
	// (left-right). Defaults to "TD" if empty.
	Direction string

	// Title is an optional diagram title.
	Title string

	// Waves groups nodes into subgraphs by parallel-ready wave. Each inner
	// slice lists the node IDs of one wave; every node in wave i depends
	// only on nodes in earlier waves. If nil, nodes render flat.
	Waves [][]string

	// Skipped lists resources pruned by their existence conditions. They
	// render as dashed nodes with no edges.
	Skipped []string

	// StatusStyles colors nodes by their run status. Leave false for plan
	// output, where every node is still pending.
	StatusStyles bool
}

// RenderMermaid generates a Mermaid flowchart string from a dependency graph.
// The output can be embedded in Markdown, rendered by mermaid-cli, or pasted
// into any tool that supports Mermaid syntax.
func RenderMermaid(g *graph.Graph, opts MermaidOptions) (string, error) {
	if g == nil {
		return "", fmt.Errorf("graph is nil")
	}

	direction := opts.Direction
	if direction == "" {
		direction = "TD"
	}

	ids := g.SortedIDs()

	var b strings.Builder

	if opts.Title != "" {
		b.WriteString(fmt.Sprintf("---\ntitle: %s\n---\n", opts.Title))
	}

	b.WriteString(fmt.Sprintf("flowchart %s\n", direction))

	if len(opts.Waves) > 0 {
		renderWaves(&b, g, opts.Waves)
	} else {
		renderFlat(&b, g, ids)
	}

	renderSkipped(&b, opts.Skipped)
	renderEdges(&b, g, ids)

	if opts.StatusStyles {
		renderStatusStyles(&b, g, ids)
	}

	return b.String(), nil
}

// renderFlat declares all nodes without wave subgraphs.
func renderFlat(b *strings.Builder, g *graph.Graph, ids []string) {
	for _, id := range ids {
		node := g.Node(id)
		b.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", mermaidID(id), escapeLabel(nodeLabel(node))))
	}
	b.WriteString("\n")
}

// renderWaves declares nodes grouped into one subgraph per parallel-ready wave.
func renderWaves(b *strings.Builder, g *graph.Graph, waves [][]string) {
	for i, wave := range waves {
		b.WriteString(fmt.Sprintf("    subgraph wave%d [\"wave %d\"]\n", i, i+1))
		sorted := make([]string, len(wave))
		copy(sorted, wave)
		sort.Strings(sorted)
		for _, id := range sorted {
			node := g.Node(id)
			if node == nil {
				continue
			}
			b.WriteString(fmt.Sprintf("        %s[\"%s\"]\n", mermaidID(id), escapeLabel(nodeLabel(node))))
		}
		b.WriteString("    end\n")
	}
	b.WriteString("\n")
}

// renderSkipped declares condition-pruned resources as dashed edgeless nodes.
func renderSkipped(b *strings.Builder, skipped []string) {
	if len(skipped) == 0 {
		return
	}
	sorted := make([]string, len(skipped))
	copy(sorted, skipped)
	sort.Strings(sorted)
	for _, id := range sorted {
		b.WriteString(fmt.Sprintf("    %s[\"%s\"]:::pruned\n", mermaidID(id), escapeLabel(id+" (skipped)")))
	}
	b.WriteString("    classDef pruned stroke-dasharray: 4 4,opacity:0.6\n\n")
}

// renderEdges emits the dependency edges, dependency pointing at dependent.
func renderEdges(b *strings.Builder, g *graph.Graph, ids []string) {
	for _, id := range ids {
		node := g.Node(id)
		deps := make([]string, len(node.DependsOn))
		copy(deps, node.DependsOn)
		sort.Strings(deps)
		for _, dep := range deps {
			b.WriteString(fmt.Sprintf("    %s --> %s\n", mermaidID(dep), mermaidID(id)))
		}
	}
}

// renderStatusStyles assigns a class per terminal status so applied graphs
// show what succeeded, failed, and got skipped.
func renderStatusStyles(b *strings.Builder, g *graph.Graph, ids []string) {
	byClass := map[string][]string{}
	for _, id := range ids {
		switch g.Node(id).Status {
		case graph.StatusSatisfied:
			byClass["satisfied"] = append(byClass["satisfied"], mermaidID(id))
		case graph.StatusFailed:
			byClass["failed"] = append(byClass["failed"], mermaidID(id))
		case graph.StatusSkipped:
			byClass["skipped"] = append(byClass["skipped"], mermaidID(id))
		}
	}
	if len(byClass) == 0 {
		return
	}
	b.WriteString("\n")
	b.WriteString("    classDef satisfied stroke:#2da44e,stroke-width:2px\n")
	b.WriteString("    classDef failed stroke:#cf222e,stroke-width:2px\n")
	b.WriteString("    classDef skipped stroke-dasharray: 4 4,opacity:0.6\n")
	for _, class := range []string{"satisfied", "failed", "skipped"} {
		members := byClass[class]
		if len(members) == 0 {
			continue
		}
		b.WriteString(fmt.Sprintf("    class %s %s\n", strings.Join(members, ","), class))
	}
}

// mermaidID makes a node ID safe for Mermaid. Graph IDs are "type.name" and
// Mermaid treats dots specially, so they become dashes.
func mermaidID(id string) string {
	return strings.ReplaceAll(id, ".", "--")
}

// nodeLabel builds the display label, including the variant when the node
// came from an alternate-scope pair.
func nodeLabel(n *graph.Node) string {
	if n.Variant != "" {
		return fmt.Sprintf("%s (%s)", n.ID, n.Variant)
	}
	return n.ID
}

// escapeLabel escapes characters with special meaning in Mermaid labels.
func escapeLabel(s string) string {
	return strings.ReplaceAll(s, `"`, `#quot;`)
}
