package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zclconf/go-cty/cty"

	"github.com/evidlab-io/evidctl/pkg/engine"
	"github.com/evidlab-io/evidctl/pkg/engine/executor"
	"github.com/evidlab-io/evidctl/pkg/names"
	"github.com/evidlab-io/evidctl/pkg/provider"
	"github.com/evidlab-io/evidctl/pkg/schema/template"
	"github.com/evidlab-io/evidctl/pkg/state/types"
)

func newApplyCmd() *cobra.Command {
	var (
		flags          paramFlags
		providerName   string
		providerConfig []string
		parallelism    int
		yes            bool
		caseName       string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Provision a capture environment",
		Long: `Resolve a capture template against case parameters, provision the
active resources in dependency order, and journal the run under its case.

The case is locked for the duration of the run so concurrent applies
against the same case cannot interleave.

Examples:
  evidctl apply -f capture.hcl -p case.yaml
  evidctl apply --var case_id=2026-0142 --parallelism 4 --yes`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tmpl, err := loadTemplate(flags.file)
			if err != nil {
				return err
			}
			values, err := resolveParams(ctx, tmpl, &flags)
			if err != nil {
				return err
			}
			plan, err := engine.BuildPlan(tmpl, values)
			if err != nil {
				return err
			}

			printPlan(plan)
			fmt.Println()

			if !yes && isInteractive() {
				fmt.Print("Proceed with provisioning? [Y/n]: ")
				var response string
				_, _ = fmt.Scanln(&response)
				response = strings.ToLower(strings.TrimSpace(response))
				if response != "" && response != "y" && response != "yes" {
					fmt.Println("Provisioning cancelled.")
					return nil
				}
			}

			provCfg, err := parseKeyValues(providerConfig)
			if err != nil {
				return err
			}
			prov, err := provider.Create(providerName, provCfg)
			if err != nil {
				return err
			}

			if caseName == "" {
				caseName = caseFromParams(values, flags.file)
			}

			mgr, err := journalManager()
			if err != nil {
				return err
			}
			lock, err := mgr.Lock(ctx, caseName, lockHolder(), "apply")
			if err != nil {
				return fmt.Errorf("case %q: %w", caseName, err)
			}
			defer func() {
				_ = lock.Unlock(ctx)
			}()

			eng := engine.New(prov, executor.Options{Parallelism: parallelism})
			result, err := eng.Apply(ctx, plan)
			if err != nil {
				return err
			}

			record := buildRunRecord(caseName, flags.file, providerName, tmpl, values, result)
			if err := mgr.SaveRun(ctx, record); err != nil {
				return fmt.Errorf("run finished but journaling failed: %w", err)
			}

			printRunSummary(os.Stdout, result)

			if result.Cancelled {
				return fmt.Errorf("run %s was cancelled", result.RunID)
			}
			if !result.Success {
				return fmt.Errorf("run %s finished with failures", result.RunID)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&providerName, "provider", "memory", "Provider to apply resources with")
	cmd.Flags().StringArrayVar(&providerConfig, "provider-config", nil, "Provider configuration (key=value)")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "Maximum concurrent provider calls (0 uses the default)")
	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the confirmation prompt")
	cmd.Flags().StringVar(&caseName, "case", "", "Case to journal the run under (defaults to the case_id parameter)")

	return cmd
}

// buildRunRecord converts a run result into its journal entry. Sensitive
// parameter values are stored redacted.
func buildRunRecord(caseName, source, providerName string, tmpl *template.Template, values map[string]cty.Value, result *engine.RunResult) *types.RunRecord {
	parameters := make(map[string]interface{}, len(values))
	for name, val := range values {
		if v := tmpl.Variable(name); v != nil && v.Sensitive {
			parameters[name] = types.RedactedValue
			continue
		}
		parameters[name] = template.GoValue(val)
	}

	return &types.RunRecord{
		ID:         result.RunID,
		Case:       caseName,
		Template:   source,
		Provider:   providerName,
		Success:    result.Success,
		Cancelled:  result.Cancelled,
		StartedAt:  result.StartedAt,
		EndedAt:    result.FinishedAt,
		Parameters: parameters,
		Nodes:      result.Nodes,
		Outputs:    result.Outputs,
		Errors:     result.Errors,
	}
}

// caseFromParams derives the journal case from the case_id parameter. When
// the template declares no case_id, the case gets a stable generated name
// derived from the template path, so repeat runs land in the same journal.
func caseFromParams(values map[string]cty.Value, templatePath string) string {
	if v, ok := values["case_id"]; ok && v.Type() == cty.String && !v.IsNull() {
		return v.AsString()
	}
	return names.Generate(templatePath)
}

// lockHolder identifies this process for journal lock metadata.
func lockHolder() string {
	user := os.Getenv("USER")
	if user == "" {
		user = "unknown"
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return user + "@" + host
}

func parseKeyValues(pairs []string) (map[string]string, error) {
	out := map[string]string{}
	for _, kv := range pairs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed value %q, want key=value", kv)
		}
		out[parts[0]] = parts[1]
	}
	return out, nil
}
