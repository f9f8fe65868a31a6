// Package config loads the optional JSON sampling config file.
//
// The file is a single JSON object with optional keys "temperature", "top_p"
// and "top_k". Each key may hold a number or null; null and an absent key
// both mean "no opinion". The "preferred_*" spellings of each key are
// accepted as aliases.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/papercomputeco/dials/pkg/sampling"
)

// fileOverrides mirrors the config file shape. Pointer fields decode both
// null and an absent key to nil, which is exactly the "unset" state of
// sampling.Param.
type fileOverrides struct {
	Temperature *float64 `json:"temperature"`
	TopP        *float64 `json:"top_p"`
	TopK        *int     `json:"top_k"`

	PreferredTemperature *float64 `json:"preferred_temperature"`
	PreferredTopP        *float64 `json:"preferred_top_p"`
	PreferredTopK        *int     `json:"preferred_top_k"`
}

// Load reads and parses the sampling config file at path. A leading "~/" is
// expanded to the user's home directory. Any read or parse failure is
// returned so startup can abort with a diagnostic; config errors are never
// deferred to request time.
func Load(path string) (sampling.Overrides, error) {
	expanded, err := expandHome(path)
	if err != nil {
		return sampling.Overrides{}, err
	}

	data, err := os.ReadFile(expanded)
	if err != nil {
		return sampling.Overrides{}, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes raw config JSON into sampling overrides.
func Parse(data []byte) (sampling.Overrides, error) {
	var raw fileOverrides
	if err := json.Unmarshal(data, &raw); err != nil {
		return sampling.Overrides{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	var o sampling.Overrides
	if v := pick(raw.Temperature, raw.PreferredTemperature); v != nil {
		o.Temperature = sampling.Set(*v)
	}
	if v := pick(raw.TopP, raw.PreferredTopP); v != nil {
		o.TopP = sampling.Set(*v)
	}
	if v := pick(raw.TopK, raw.PreferredTopK); v != nil {
		o.TopK = sampling.Set(*v)
	}

	return o, nil
}

// pick returns the primary value when present, falling back to the alias.
func pick[T any](primary, alias *T) *T {
	if primary != nil {
		return primary
	}
	return alias
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expanding %q: %w", path, err)
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
