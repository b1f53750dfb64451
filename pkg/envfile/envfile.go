// Package envfile loads dotenv-style variable files with the conventional
// override chain: .env, .env.local, .env.<environment>,
// .env.<environment>.local, later files overriding earlier ones.
package envfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Load reads the dotenv chain from dir. Missing files are skipped.
func Load(dir, environment string) (map[string]string, error) {
	files := []string{".env", ".env.local"}
	if environment != "" {
		files = append(files, ".env."+environment, ".env."+environment+".local")
	}

	vars := make(map[string]string)
	for _, name := range files {
		path := filepath.Join(dir, name)
		content, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := parseEnvFile(content, vars); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	return vars, nil
}

// parseEnvFile parses dotenv content into vars, overriding existing keys.
func parseEnvFile(content []byte, vars map[string]string) error {
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, found := strings.Cut(line, "=")
		if !found {
			return fmt.Errorf("malformed line %q", line)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		vars[key] = value
	}
	return nil
}
