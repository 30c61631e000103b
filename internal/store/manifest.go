package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk shape of a configuration source: an optional
// service section plus an array of scoped rules.
type Manifest struct {
	Service *Config `yaml:"service,omitempty"`
	Rules   []Rule  `yaml:"rules,omitempty"`
}

// ParseManifest decodes a YAML manifest. Unknown fields are rejected so
// typos surface at load time instead of silently resolving to defaults.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		return Manifest{}, fmt.Errorf("failed to parse configuration manifest: %w", err)
	}
	return m, nil
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read configuration manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// AddManifest registers a manifest's service section and rules from
// source.
func (s *Store) AddManifest(source Scope, m Manifest) error {
	var cfg Config
	if m.Service != nil {
		cfg = *m.Service
	}
	return s.Add(source, cfg, m.Rules...)
}
