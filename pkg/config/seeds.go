package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConstraintSeed overrides the default settings of one constraint at startup.
type ConstraintSeed struct {
	ID         string         `yaml:"id"`
	Enabled    *bool          `yaml:"enabled"`
	Parameters map[string]any `yaml:"parameters"`
}

type constraintSeedFile struct {
	Constraints []ConstraintSeed `yaml:"constraints"`
}

// LoadConstraintSeeds reads the YAML rule file. An empty path yields no seeds.
func LoadConstraintSeeds(path string) ([]ConstraintSeed, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read constraint rules %s: %w", path, err)
	}

	var file constraintSeedFile
	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse constraint rules %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(file.Constraints))
	for i, seed := range file.Constraints {
		id := strings.TrimSpace(seed.ID)
		if id == "" {
			return nil, fmt.Errorf("constraint rules %s: entry %d has no id", path, i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("constraint rules %s: duplicate id %q", path, id)
		}
		seen[id] = struct{}{}
		file.Constraints[i].ID = id
	}
	return file.Constraints, nil
}
