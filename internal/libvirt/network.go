package libvirt

import (
	"fmt"
	"os"

	"libvirt.org/go/libvirtxml"
)

// NetworkDefinition is a libvirt network read from an XML file.
type NetworkDefinition struct {
	Name string
	XML  string
}

// LoadNetworkDefinition reads a network XML file and extracts its name.
func LoadNetworkDefinition(path string) (*NetworkDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read network definition: %w", err)
	}

	var network libvirtxml.Network
	if err := network.Unmarshal(string(data)); err != nil {
		return nil, fmt.Errorf("failed to parse network definition %s: %w", path, err)
	}
	if network.Name == "" {
		return nil, fmt.Errorf("network definition %s has no name", path)
	}

	return &NetworkDefinition{Name: network.Name, XML: string(data)}, nil
}
