package status

// MachineStatus is one row of ps output.
type MachineStatus struct {
	Name      string      `json:"name" yaml:"name"`
	State     DomainState `json:"state" yaml:"state"`
	Detail    string      `json:"detail,omitempty" yaml:"detail,omitempty"` // libvirt state name
	Image     string      `json:"image" yaml:"image"`
	OS        string      `json:"os,omitempty" yaml:"os,omitempty"`
	Installer string      `json:"installer" yaml:"installer"`
	VCPUs     int         `json:"vcpus" yaml:"vcpus"`
	MemoryMiB int         `json:"memoryMiB" yaml:"memoryMiB"`
	Address   string      `json:"address,omitempty" yaml:"address,omitempty"`
}
