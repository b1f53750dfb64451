package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/zclconf/go-cty/cty"
	"golang.org/x/term"

	"github.com/evidlab-io/evidctl/pkg/params"
	"github.com/evidlab-io/evidctl/pkg/schema/template"
	"github.com/evidlab-io/evidctl/pkg/secrets"
	"github.com/evidlab-io/evidctl/pkg/state"
	"github.com/evidlab-io/evidctl/pkg/state/backend"
)

// paramFlags holds the parameter-source flags shared by plan, apply and graph.
type paramFlags struct {
	file        string
	paramsFile  string
	environment string
	vars        []string
}

func (f *paramFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "capture.hcl", "Path to the capture template")
	cmd.Flags().StringVarP(&f.paramsFile, "params", "p", "", "YAML file of parameter values")
	cmd.Flags().StringVar(&f.environment, "environment", "", "Dotenv environment to load (.env.<name>)")
	cmd.Flags().StringArrayVar(&f.vars, "var", nil, "Set a parameter value (key=value)")
}

// loadTemplate parses the template, rendering HCL diagnostics one per line.
func loadTemplate(path string) (*template.Template, error) {
	tmpl, diags, err := template.NewParser().Parse(path)
	if err != nil {
		if len(diags) > 0 {
			var sb strings.Builder
			sb.WriteString(fmt.Sprintf("%s has syntax errors:\n", path))
			for _, d := range diags {
				sb.WriteString(fmt.Sprintf("  %s\n", d.Error()))
			}
			return nil, fmt.Errorf("%s", sb.String())
		}
		return nil, err
	}
	return tmpl, nil
}

// resolveParams builds the typed parameter set from the command's sources.
func resolveParams(ctx context.Context, tmpl *template.Template, f *paramFlags) (map[string]cty.Value, error) {
	sources := params.Sources{
		File:        f.paramsFile,
		EnvDir:      ".",
		Environment: f.environment,
		Flags:       f.vars,
	}
	return params.Resolve(ctx, tmpl, sources, secrets.DefaultManager())
}

// journalManager constructs the journal from the --backend flags.
func journalManager() (state.Manager, error) {
	settings := map[string]string{}
	for _, kv := range viper.GetStringSlice("backend-config") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed --backend-config %q, want key=value", kv)
		}
		settings[parts[0]] = parts[1]
	}
	cfg := backend.Config{
		Type:     viper.GetString("backend"),
		Settings: settings,
	}
	if cfg.Type == "local" && settings["path"] == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		settings["path"] = home + "/.evidctl/journal"
	}
	return state.NewManagerFromConfig(cfg)
}

// isInteractive reports whether stdin is a terminal outside a CI environment.
func isInteractive() bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false
	}
	for _, env := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "BUILDKITE"} {
		if os.Getenv(env) != "" {
			return false
		}
	}
	return true
}
