package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evidlab-io/evidctl/pkg/schema/template"
)

func newValidateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a capture template",
		Long: `Validate a capture template without provisioning anything.

Checks syntax, declarations, dependency references, and alternate-scope
pairing. All problems are reported together.

Examples:
  evidctl validate
  evidctl validate ./cases/malware.hcl
  evidctl validate -f capture.hcl`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "capture.hcl"
			if len(args) > 0 {
				path = args[0]
			}
			if file != "" {
				path = file
			}

			tmpl, err := loadTemplate(path)
			if err != nil {
				return err
			}
			if err := template.Validate(tmpl); err != nil {
				return err
			}

			fmt.Printf("%s is valid: %d variables, %d resources, %d outputs\n",
				path, len(tmpl.Variables), len(tmpl.Resources), len(tmpl.Outputs))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the capture template if not in the default location")

	return cmd
}
