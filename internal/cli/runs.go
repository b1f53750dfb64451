package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/evidlab-io/evidctl/pkg/state/types"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the run journal",
		Long:  `Commands for listing and inspecting journaled provisioning runs.`,
	}

	cmd.AddCommand(newRunsListCmd())
	cmd.AddCommand(newRunsShowCmd())

	return cmd
}

func newRunsListCmd() *cobra.Command {
	var caseName string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journaled runs",
		Long: `List runs for a case, newest first. Without --case, lists every case
that has at least one journaled run.

Examples:
  evidctl runs list
  evidctl runs list --case 2026-0142`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mgr, err := journalManager()
			if err != nil {
				return err
			}

			if caseName == "" {
				cases, err := mgr.ListCases(ctx)
				if err != nil {
					return err
				}
				if len(cases) == 0 {
					fmt.Println("No journaled runs.")
					return nil
				}
				fmt.Println("Cases:")
				for _, c := range cases {
					fmt.Printf("  %s\n", c)
				}
				return nil
			}

			refs, err := mgr.ListRuns(ctx, caseName)
			if err != nil {
				return err
			}
			if len(refs) == 0 {
				fmt.Printf("No runs for case %q.\n", caseName)
				return nil
			}
			for _, ref := range refs {
				outcome := "ok"
				if !ref.Success {
					outcome = "failed"
				}
				fmt.Printf("%s  %-6s  %s\n", ref.StartedAt.Format(time.RFC3339), outcome, ref.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&caseName, "case", "", "Case to list runs for")

	return cmd
}

func newRunsShowCmd() *cobra.Command {
	var caseName string

	cmd := &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show one journaled run",
		Long: `Show the full record of a journaled run: per-resource outcomes,
evaluated outputs, and parameters. Without a run ID, shows the case's
latest run.

Examples:
  evidctl runs show --case 2026-0142
  evidctl runs show 4f7c9a12-... --case 2026-0142`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if caseName == "" {
				return fmt.Errorf("--case is required")
			}
			ctx := cmd.Context()
			mgr, err := journalManager()
			if err != nil {
				return err
			}

			var (
				run *types.RunRecord
			)
			if len(args) > 0 {
				run, err = mgr.GetRun(ctx, caseName, args[0])
			} else {
				run, err = mgr.LatestRun(ctx, caseName)
			}
			if err != nil {
				return err
			}

			printRunRecord(run)
			return nil
		},
	}

	cmd.Flags().StringVar(&caseName, "case", "", "Case the run belongs to")

	return cmd
}

func printRunRecord(run *types.RunRecord) {
	outcome := "succeeded"
	if run.Cancelled {
		outcome = "cancelled"
	} else if !run.Success {
		outcome = "failed"
	}
	fmt.Printf("Run %s (%s)\n", run.ID, outcome)
	fmt.Printf("  case:     %s\n", run.Case)
	fmt.Printf("  template: %s\n", run.Template)
	fmt.Printf("  provider: %s\n", run.Provider)
	fmt.Printf("  started:  %s\n", run.StartedAt.Format(time.RFC3339))
	fmt.Printf("  ended:    %s\n", run.EndedAt.Format(time.RFC3339))

	if len(run.Parameters) > 0 {
		fmt.Println("\nParameters:")
		names := make([]string, 0, len(run.Parameters))
		for name := range run.Parameters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %s = %v\n", name, run.Parameters[name])
		}
	}

	ids := make([]string, 0, len(run.Nodes))
	for id := range run.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Println("\nResources:")
	for _, id := range ids {
		rec := run.Nodes[id]
		line := fmt.Sprintf("  %s %-11s %s", statusIcon(rec), rec.Status, id)
		if rec.SkipReason != "" {
			line += fmt.Sprintf(" [%s]", rec.SkipReason)
		}
		fmt.Println(line)
		if rec.Error != "" {
			fmt.Printf("      %s\n", rec.Error)
		}
	}

	if len(run.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		for _, out := range run.Outputs {
			if out.Absent {
				fmt.Printf("  %s = (absent)\n", out.Name)
			} else {
				fmt.Printf("  %s = %v\n", out.Name, out.Value)
			}
		}
	}

	counts := run.CountNodes()
	fmt.Printf("\n%d satisfied, %d failed, %d skipped\n", counts.Satisfied, counts.Failed, counts.Skipped)
}
