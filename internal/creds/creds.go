// Package creds resolves the model-service API key from the environment.
package creds

import (
	"fmt"
	"os"
	"strings"
)

// Candidates are the environment variables probed, in priority order.
var Candidates = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "API_KEY"}

// ErrMissing is returned when no candidate variable holds a value. Its text
// names the candidates so it can be surfaced to the user verbatim.
var ErrMissing = fmt.Errorf("no API key found; set one of %s", strings.Join(Candidates, ", "))

// Resolve returns the first non-empty, trimmed candidate value.
func Resolve() (string, error) {
	return resolve(os.Getenv)
}

func resolve(getenv func(string) string) (string, error) {
	for _, name := range Candidates {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			return v, nil
		}
	}
	return "", ErrMissing
}
