// Package config handles growler.yaml loading.
package config

import (
	"os"
	"regexp"
	"strings"
)

// envRef matches ${VAR} and ${VAR:-default}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} references in input.
//
// An unset or empty variable takes its default, or expands to "" when it
// has none. Bare $VAR is left alone so literal dollars in secrets survive.
// Missing required values surface later, in validation of the field that
// needed them.
func ExpandEnv(input string) string {
	matches := envRef.FindAllStringSubmatchIndex(input, -1)
	if matches == nil {
		return input
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(input[last:m[0]])
		last = m[1]

		value := os.Getenv(input[m[2]:m[3]])
		if value == "" && m[6] >= 0 {
			value = input[m[6]:m[7]]
		}
		b.WriteString(value)
	}
	b.WriteString(input[last:])
	return b.String()
}
