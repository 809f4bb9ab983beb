// Package loader reads virt-compose manifests and action files from disk.
package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/virtcompose/internal/config"
)

// DefaultManifestPath is used when no --file flag is given.
const DefaultManifestPath = "virt-compose.yml"

// LoadFromFile loads a manifest. Relative image and network paths are
// resolved against the manifest's directory.
func LoadFromFile(path string) (*config.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	m, err := LoadFromYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	resolvePaths(m, filepath.Dir(abs))

	return m, nil
}

// LoadFromYAML decodes, defaults, and validates a manifest. Paths are left
// as written.
func LoadFromYAML(data []byte) (*config.Manifest, error) {
	var m config.Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	m.Normalize()

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &m, nil
}

// LoadActionsFromFile reads a standalone YAML list of actions.
func LoadActionsFromFile(path string) (config.Actions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	var actions config.Actions
	if err := yaml.Unmarshal(data, &actions); err != nil {
		return nil, fmt.Errorf("%s: failed to unmarshal YAML: %w", path, err)
	}
	actions.Normalize()
	if err := actions.Validate(); err != nil {
		return nil, fmt.Errorf("%s: validation failed: %w", path, err)
	}
	return actions, nil
}

func resolvePaths(m *config.Manifest, dir string) {
	for _, img := range m.Images {
		img.Packerfile = resolve(dir, img.Packerfile)
		img.Output = resolve(dir, img.Output)
		if img.Context == "" {
			img.Context = dir
		} else {
			img.Context = resolve(dir, img.Context)
		}
	}
	for i, network := range m.Networks {
		m.Networks[i] = resolve(dir, network)
	}
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
