package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/evidlab-io/evidctl/pkg/engine"
	"github.com/evidlab-io/evidctl/pkg/graph/visual"
)

func newGraphCmd() *cobra.Command {
	var (
		flags     paramFlags
		direction string
		title     string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the dependency graph",
		Long: `Resolve a capture template against case parameters and render the
resulting dependency graph as a Mermaid flowchart. Resources pruned by
their conditions appear dashed. With --output, the diagram is rendered to
a PNG via mermaid-cli (mmdc).

Examples:
  evidctl graph -f capture.hcl -p case.yaml
  evidctl graph --var case_id=2026-0142 --direction LR -o graph.png`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl, err := loadTemplate(flags.file)
			if err != nil {
				return err
			}
			values, err := resolveParams(cmd.Context(), tmpl, &flags)
			if err != nil {
				return err
			}
			plan, err := engine.BuildPlan(tmpl, values)
			if err != nil {
				return err
			}

			skipped := make([]string, 0, len(plan.Skipped))
			for _, s := range plan.Skipped {
				skipped = append(skipped, s.ID)
			}

			text, err := visual.RenderMermaid(plan.Graph, visual.MermaidOptions{
				Direction: direction,
				Title:     title,
				Waves:     plan.Groups,
				Skipped:   skipped,
			})
			if err != nil {
				return err
			}

			if output == "" {
				fmt.Print(text)
				return nil
			}

			png, err := visual.RenderMermaidToImage(text, visual.ImageOptions{})
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, png, 0644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", output)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&direction, "direction", "TD", "Flowchart direction (TD or LR)")
	cmd.Flags().StringVar(&title, "title", "", "Diagram title")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write a PNG to this path instead of printing Mermaid text")

	return cmd
}
