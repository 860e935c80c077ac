package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envPattern matches ${VAR} and ${VAR:-default} expressions.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads a YAML configuration file, expands environment variables,
// and parses it into a Config. Secrets like the JWT signing key are
// expected to arrive through ${VAR} references rather than literals.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	expanded, unresolved := expandEnv(string(raw))
	if len(unresolved) > 0 {
		return nil, fmt.Errorf("config: %s references unset variables without defaults: %s",
			path, strings.Join(unresolved, ", "))
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// expandEnv substitutes ${VAR} and ${VAR:-default} in the raw YAML text.
// Variables that are unset and carry no default are left in place and
// reported by name.
func expandEnv(raw string) (string, []string) {
	var unresolved []string

	expanded := envPattern.ReplaceAllStringFunc(raw, func(match string) string {
		subs := envPattern.FindStringSubmatch(match)
		name := subs[1]

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		// An empty default ("${VAR:-}") still counts as a default.
		if strings.HasPrefix(match, "${"+name+":-") {
			return subs[2]
		}

		unresolved = append(unresolved, name)
		return match
	})

	return expanded, unresolved
}
