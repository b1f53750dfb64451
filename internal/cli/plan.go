package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evidlab-io/evidctl/pkg/engine"
)

func newPlanCmd() *cobra.Command {
	var flags paramFlags

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what a run would provision",
		Long: `Resolve a capture template against case parameters and print the
execution plan: which resources are active, which are pruned by their
conditions, and the waves they would apply in. No resources are touched.

Examples:
  evidctl plan -f capture.hcl -p case.yaml
  evidctl plan --var case_id=2026-0142 --var capture_network=false`,
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

			printPlan(plan)
			return nil
		},
	}

	flags.register(cmd)

	return cmd
}

// printPlan renders the plan's pruned resources and wave schedule.
func printPlan(plan *engine.Plan) {
	if len(plan.Skipped) > 0 {
		fmt.Println("Skipped (condition false):")
		for _, s := range plan.Skipped {
			fmt.Printf("  - %s\n", s.ID)
		}
		fmt.Println()
	}

	total := 0
	for i, wave := range plan.Groups {
		fmt.Printf("Wave %d:\n", i+1)
		for _, id := range wave {
			node := plan.Graph.Node(id)
			line := "  + " + id
			if node.Variant != "" {
				line += fmt.Sprintf(" (variant %q)", node.Variant)
			}
			if len(node.DependsOn) > 0 {
				line += " <- " + strings.Join(node.DependsOn, ", ")
			}
			fmt.Println(line)
			total++
		}
	}

	fmt.Printf("\nPlan: %d to provision, %d skipped\n", total, len(plan.Skipped))
}
