// Package config defines the virt-compose manifest schema.
package config

import (
	"fmt"
	"net"
	"regexp"
	"runtime"
	"sort"
	"strings"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// DefaultNetwork is the libvirt network machines attach to when none is set.
const DefaultNetwork = "default"

// Manifest is the declared state for one project.
type Manifest struct {
	Machines map[string]*MachineSpec `yaml:"machines"`
	Images   map[string]*ImageSpec   `yaml:"images"`
	Networks []string                `yaml:"networks,omitempty"` // Paths to libvirt network XML definitions
}

// MachineSpec describes one virtual machine.
type MachineSpec struct {
	Image     string    `yaml:"image"`
	Memory    int       `yaml:"memory"`          // MiB
	VCPUs     int       `yaml:"vcpus,omitempty"` // Defaults to host core count
	OS        string    `yaml:"os,omitempty"`    // libosinfo short id, e.g. "debian12"
	UEFI      bool      `yaml:"uefi,omitempty"`
	Network   string    `yaml:"network,omitempty"`
	MAC       string    `yaml:"mac,omitempty"`
	Installer Installer `yaml:"installer"`
	Actions   Actions   `yaml:"actions,omitempty"`
}

// ImageSpec describes how to build a boot image.
type ImageSpec struct {
	Packerfile string `yaml:"packerfile"`
	Output     string `yaml:"output"`
	Context    string `yaml:"context,omitempty"` // Working directory for the build, defaults to the manifest directory
}

// InstallerKind selects how a machine's disk is prepared.
type InstallerKind string

const (
	// InstallerDisk imports the built image as the machine's disk.
	InstallerDisk InstallerKind = "disk"
	// InstallerCDRom boots the built image as an installer CD onto an empty disk.
	InstallerCDRom InstallerKind = "cdrom"
)

// Installer is either {disk: null} or {cdrom: <size>}.
type Installer struct {
	Kind InstallerKind
	Size int64 // Bytes, cdrom only
}

// UnmarshalYAML decodes the single-key installer mapping.
func (in *Installer) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Value == string(InstallerDisk) {
		in.Kind = InstallerDisk
		return nil
	}
	key, value, err := singleKey(node)
	if err != nil {
		return fmt.Errorf("installer: %w", err)
	}

	switch InstallerKind(key) {
	case InstallerDisk:
		if value.Tag != "!!null" {
			return fmt.Errorf("line %d: installer disk takes no value", value.Line)
		}
		*in = Installer{Kind: InstallerDisk}
	case InstallerCDRom:
		size, err := units.RAMInBytes(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: invalid cdrom size %q: %w", value.Line, value.Value, err)
		}
		*in = Installer{Kind: InstallerCDRom, Size: size}
	default:
		return fmt.Errorf("line %d: unknown installer %q (must be disk or cdrom)", node.Line, key)
	}
	return nil
}

// MarshalYAML encodes the installer in its manifest form.
func (in Installer) MarshalYAML() (interface{}, error) {
	if in.Kind == InstallerCDRom {
		return map[string]string{"cdrom": units.BytesSize(float64(in.Size))}, nil
	}
	return map[string]interface{}{"disk": nil}, nil
}

// singleKey returns the only key/value pair of a mapping node.
func singleKey(node *yaml.Node) (string, *yaml.Node, error) {
	if node.Kind != yaml.MappingNode {
		return "", nil, fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	if len(node.Content) != 2 {
		return "", nil, fmt.Errorf("line %d: expected exactly one key, got %d", node.Line, len(node.Content)/2)
	}
	return node.Content[0].Value, node.Content[1], nil
}

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Normalize fills in defaults. It is called by the loader before validation.
func (m *Manifest) Normalize() {
	for _, machine := range m.Machines {
		if machine == nil {
			continue
		}
		if machine.VCPUs == 0 {
			machine.VCPUs = runtime.NumCPU()
		}
		if machine.Network == "" {
			machine.Network = DefaultNetwork
		}
		if machine.Installer.Kind == "" {
			machine.Installer.Kind = InstallerDisk
		}
		machine.MAC = strings.ToLower(strings.TrimSpace(machine.MAC))
		machine.Actions.Normalize()
	}
}

// Validate checks the manifest structure. Referenced files are not checked.
func (m *Manifest) Validate() error {
	if len(m.Machines) == 0 && len(m.Images) == 0 {
		return fmt.Errorf("manifest declares no machines and no images")
	}

	for _, name := range m.ImageNames() {
		img := m.Images[name]
		if !namePattern.MatchString(name) {
			return fmt.Errorf("images.%s: invalid name", name)
		}
		if img == nil {
			return fmt.Errorf("images.%s: empty definition", name)
		}
		if img.Packerfile == "" {
			return fmt.Errorf("images.%s: packerfile is required", name)
		}
		if img.Output == "" {
			return fmt.Errorf("images.%s: output is required", name)
		}
	}

	for _, name := range m.MachineNames() {
		machine := m.Machines[name]
		if !namePattern.MatchString(name) {
			return fmt.Errorf("machines.%s: name must start with an alphanumeric character and contain only alphanumerics, dots, hyphens, or underscores", name)
		}
		if machine == nil {
			return fmt.Errorf("machines.%s: empty definition", name)
		}
		if err := machine.Validate(); err != nil {
			return fmt.Errorf("machines.%s: %w", name, err)
		}
		if _, ok := m.Images[machine.Image]; !ok {
			return fmt.Errorf("machines.%s: unknown image %q", name, machine.Image)
		}
	}

	for i, path := range m.Networks {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("networks[%d]: empty path", i)
		}
	}
	return nil
}

// Validate checks a single machine definition.
func (s *MachineSpec) Validate() error {
	if s.Image == "" {
		return fmt.Errorf("image is required")
	}
	if s.Memory <= 0 {
		return fmt.Errorf("memory must be > 0, got %d", s.Memory)
	}
	if s.VCPUs < 0 {
		return fmt.Errorf("vcpus must be >= 0, got %d", s.VCPUs)
	}
	switch s.Installer.Kind {
	case InstallerDisk, "":
	case InstallerCDRom:
		if s.Installer.Size <= 0 {
			return fmt.Errorf("installer: cdrom size must be > 0")
		}
	default:
		return fmt.Errorf("installer: unknown kind %q", s.Installer.Kind)
	}
	if s.MAC != "" {
		if _, err := net.ParseMAC(s.MAC); err != nil {
			return fmt.Errorf("invalid mac %q: %w", s.MAC, err)
		}
	}
	if err := s.Actions.Validate(); err != nil {
		return err
	}
	return nil
}

// MachineNames returns the machine names in sorted order.
func (m *Manifest) MachineNames() []string {
	return sortedKeys(m.Machines)
}

// ImageNames returns the image names in sorted order.
func (m *Manifest) ImageNames() []string {
	return sortedKeys(m.Images)
}

func sortedKeys[V any](in map[string]V) []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
