// Package params assembles the parameter set for a run. Values come from a
// YAML file, dotenv files, EVIDCTL_VAR_* environment variables, and -var
// flags, in that precedence order. String values may embed secret
// references, resolved before type coercion.
package params

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"gopkg.in/yaml.v3"

	"github.com/evidlab-io/evidctl/pkg/envfile"
	"github.com/evidlab-io/evidctl/pkg/errors"
	"github.com/evidlab-io/evidctl/pkg/schema/template"
	"github.com/evidlab-io/evidctl/pkg/secrets"
)

// EnvVarPrefix is the prefix for parameter environment variables. The
// variable name follows in upper case: EVIDCTL_VAR_CASE_NUMBER sets
// case_number.
const EnvVarPrefix = "EVIDCTL_VAR_"

// Sources describes where parameter values come from.
type Sources struct {
	// File is an optional YAML file of parameter values.
	File string

	// EnvDir enables the dotenv chain in the given directory.
	EnvDir string

	// Environment selects the dotenv environment (.env.<name>).
	Environment string

	// Flags holds key=value pairs from -var flags. Highest precedence.
	Flags []string

	// SkipProcessEnv disables reading EVIDCTL_VAR_* variables.
	SkipProcessEnv bool
}

// Resolve builds the typed parameter set for a template. Every declared
// variable ends up in the result: from a source, or from its default. A
// variable with neither is an error, as is a provided value that cannot be
// coerced to the declared type. All problems are reported together.
func Resolve(ctx context.Context, tmpl *template.Template, sources Sources, sm *secrets.Manager) (map[string]cty.Value, error) {
	raw, err := collect(sources)
	if err != nil {
		return nil, err
	}

	if sm != nil {
		resolved, err := sm.ResolveSecrets(ctx, raw)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeSecret, "failed to resolve secret references", err)
		}
		raw = resolved
	}

	var list errors.List
	result := make(map[string]cty.Value, len(tmpl.Variables))

	for i := range tmpl.Variables {
		v := &tmpl.Variables[i]
		rawVal, provided := raw[v.Name]
		if !provided {
			if v.Default == nil {
				list.Append(errors.New(errors.ErrCodeParams,
					fmt.Sprintf("variable %q has no value and no default", v.Name)))
				continue
			}
			result[v.Name] = v.DefaultValue
			continue
		}

		val, err := coerce(rawVal, v.Type)
		if err != nil {
			list.Append(errors.Wrap(errors.ErrCodeParams,
				fmt.Sprintf("variable %q", v.Name), err))
			continue
		}
		result[v.Name] = val
	}

	for name := range raw {
		if tmpl.Variable(name) == nil {
			list.Append(errors.New(errors.ErrCodeParams,
				fmt.Sprintf("value provided for undeclared variable %q", name)))
		}
	}

	if err := list.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// collect merges the raw values from every source in precedence order.
func collect(sources Sources) (map[string]interface{}, error) {
	raw := make(map[string]interface{})

	if sources.File != "" {
		data, err := os.ReadFile(sources.File)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeParams, "failed to read parameter file", err)
		}
		fileVals := make(map[string]interface{})
		if err := yaml.Unmarshal(data, &fileVals); err != nil {
			return nil, errors.ParseError(sources.File, err)
		}
		for k, v := range fileVals {
			raw[k] = v
		}
	}

	if sources.EnvDir != "" {
		envVals, err := envfile.Load(sources.EnvDir, sources.Environment)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeParams, "failed to load env files", err)
		}
		for k, v := range envVals {
			raw[strings.ToLower(k)] = v
		}
	}

	if !sources.SkipProcessEnv {
		for _, entry := range os.Environ() {
			name, value, _ := strings.Cut(entry, "=")
			if !strings.HasPrefix(name, EnvVarPrefix) {
				continue
			}
			key := strings.ToLower(strings.TrimPrefix(name, EnvVarPrefix))
			raw[key] = value
		}
	}

	for _, flag := range sources.Flags {
		key, value, found := strings.Cut(flag, "=")
		if !found || key == "" {
			return nil, errors.New(errors.ErrCodeParams,
				fmt.Sprintf("malformed -var flag %q, expected key=value", flag))
		}
		raw[key] = value
	}

	return raw, nil
}

// coerce converts a raw source value to the declared variable type. String
// inputs for number and bool variables are parsed, so flag and environment
// sources work for every type.
func coerce(raw interface{}, varType string) (cty.Value, error) {
	val, err := template.CtyValue(raw)
	if err != nil {
		return cty.NilVal, err
	}

	target, ok := targetType(varType)
	if !ok {
		return val, nil
	}
	converted, err := convert.Convert(val, target)
	if err != nil {
		return cty.NilVal, fmt.Errorf("cannot convert %v to %s: %w", raw, varType, err)
	}
	return converted, nil
}

func targetType(varType string) (cty.Type, bool) {
	switch varType {
	case "string":
		return cty.String, true
	case "number":
		return cty.Number, true
	case "bool":
		return cty.Bool, true
	default:
		// list and map values keep their element types as given.
		return cty.NilType, false
	}
}

// Names returns the sorted variable names of a parameter set, for logs.
func Names(params map[string]cty.Value) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
