package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Source describes how to load a secret value.
type Source struct {
	// Name is used in error messages to give more context about the secret.
	Name string
	// Value is an inline secret value provided via configuration or flags.
	Value string
	// File points to a file containing the secret value. When set it takes
	// precedence over Value.
	File string
	// Env lists environment variables consulted, in order, when neither File
	// nor Value is set.
	Env []string
}

// Load returns the resolved secret value from the provided source.
// Precedence is File, then Value, then the first non-empty Env variable.
// The returned secret is always trimmed.
func Load(src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	file := strings.TrimSpace(src.File)
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
		}

		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("%s file %q is empty", name, file)
		}
		return secret, nil
	}

	if secret := strings.TrimSpace(src.Value); secret != "" {
		return secret, nil
	}

	for _, key := range src.Env {
		if secret := strings.TrimSpace(os.Getenv(key)); secret != "" {
			return secret, nil
		}
	}

	if len(src.Env) > 0 {
		return "", fmt.Errorf("%s is not configured (checked %s)", name, strings.Join(src.Env, ", "))
	}
	return "", fmt.Errorf("%s is not configured", name)
}
