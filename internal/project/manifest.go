package project

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Manifest is the subset of Cargo.toml the tool inspects.
type Manifest struct {
	Path   string
	Config manifestConfig
}

type manifestConfig struct {
	Package         packageConfig             `toml:"package"`
	Dependencies    map[string]toml.Primitive `toml:"dependencies"`
	DevDependencies map[string]toml.Primitive `toml:"dev-dependencies"`
	Workspace       workspaceConfig           `toml:"workspace"`
}

type packageConfig struct {
	Name string `toml:"name"`
}

type workspaceConfig struct {
	Dependencies map[string]toml.Primitive `toml:"dependencies"`
}

// LoadManifest parses the Cargo.toml at path.
func LoadManifest(path string) (*Manifest, error) {
	var cfg manifestConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &Manifest{Path: path, Config: cfg}, nil
}

// PackageName returns the [package] name, empty for virtual workspaces.
func (m *Manifest) PackageName() string {
	return m.Config.Package.Name
}

// HasDependency reports whether the manifest declares the named crate in
// dependencies, dev-dependencies, or workspace dependencies.
func (m *Manifest) HasDependency(crate string) bool {
	if _, ok := m.Config.Dependencies[crate]; ok {
		return true
	}
	if _, ok := m.Config.DevDependencies[crate]; ok {
		return true
	}
	if _, ok := m.Config.Workspace.Dependencies[crate]; ok {
		return true
	}
	return false
}
