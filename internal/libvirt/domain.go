package libvirt

import (
	"fmt"

	"github.com/google/uuid"
	"libvirt.org/go/libvirtxml"
)

// DomainParams is everything needed to define a machine's domain.
type DomainParams struct {
	Name       string
	MemoryMiB  int
	VCPUs      int
	UEFI       bool
	Network    string // libvirt network the NIC attaches to
	MAC        string // Optional, libvirt assigns one when empty
	Pool       string // Pool holding the disk volume
	Volume     string // Disk volume name
	DiskFormat string // Disk driver type, qcow2 or raw
	CDRomPath  string // Optional installer image attached read-only
}

// Validate checks the parameters that would otherwise fail at define time.
func (p *DomainParams) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("domain name is required")
	}
	if p.MemoryMiB <= 0 {
		return fmt.Errorf("memory must be > 0, got %d", p.MemoryMiB)
	}
	if p.VCPUs <= 0 {
		return fmt.Errorf("vcpus must be > 0, got %d", p.VCPUs)
	}
	if p.Pool == "" || p.Volume == "" {
		return fmt.Errorf("disk pool and volume are required")
	}
	return nil
}

// GenerateDomainXML generates libvirt domain XML for a machine. The disk
// boots first; a cdrom installer is the fallback while the disk is blank.
func GenerateDomainXML(p DomainParams) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	diskFormat := p.DiskFormat
	if diskFormat == "" {
		diskFormat = "qcow2"
	}
	network := p.Network
	if network == "" {
		network = "default"
	}

	domain := &libvirtxml.Domain{
		Type: "kvm",
		Name: p.Name,
		UUID: uuid.NewString(),
		Memory: &libvirtxml.DomainMemory{
			Value: uint(p.MemoryMiB),
			Unit:  "MiB",
		},
		VCPU: &libvirtxml.DomainVCPU{
			Placement: "static",
			Value:     uint(p.VCPUs),
		},
		OS: &libvirtxml.DomainOS{
			Type: &libvirtxml.DomainOSType{
				Arch:    "x86_64",
				Machine: "q35",
				Type:    "hvm",
			},
		},
		Features: &libvirtxml.DomainFeatureList{
			ACPI: &libvirtxml.DomainFeature{},
			APIC: &libvirtxml.DomainFeatureAPIC{},
		},
		CPU: &libvirtxml.DomainCPU{
			Mode: "host-passthrough",
		},
		Clock: &libvirtxml.DomainClock{
			Offset: "utc",
			Timer: []libvirtxml.DomainTimer{
				{Name: "rtc", TickPolicy: "catchup"},
				{Name: "pit", TickPolicy: "delay"},
				{Name: "hpet", Present: "no"},
			},
		},
		OnPoweroff: "destroy",
		OnReboot:   "restart",
		OnCrash:    "destroy",
		Devices: &libvirtxml.DomainDeviceList{
			MemBalloon: &libvirtxml.DomainMemBalloon{
				Model: "virtio",
			},
			RNGs: []libvirtxml.DomainRNG{
				{
					Model: "virtio",
					Backend: &libvirtxml.DomainRNGBackend{
						Random: &libvirtxml.DomainRNGBackendRandom{
							Device: "/dev/urandom",
						},
					},
				},
			},
			Graphics: []libvirtxml.DomainGraphic{
				{
					VNC: &libvirtxml.DomainGraphicVNC{
						Port:     -1,
						AutoPort: "yes",
						Listen:   "127.0.0.1",
					},
				},
			},
			Videos: []libvirtxml.DomainVideo{
				{
					Model: libvirtxml.DomainVideoModel{
						Type: "virtio",
					},
				},
			},
		},
	}

	if p.UEFI {
		domain.OS.Firmware = "efi"
	} else {
		domain.OS.BIOS = &libvirtxml.DomainBIOS{UseSerial: "yes"}
	}

	domain.Devices.Disks = append(domain.Devices.Disks, libvirtxml.DomainDisk{
		Device: "disk",
		Driver: &libvirtxml.DomainDiskDriver{
			Name:  "qemu",
			Type:  diskFormat,
			Cache: "none",
		},
		Source: &libvirtxml.DomainDiskSource{
			Volume: &libvirtxml.DomainDiskSourceVolume{
				Pool:   p.Pool,
				Volume: p.Volume,
			},
		},
		Target: &libvirtxml.DomainDiskTarget{
			Dev: "vda",
			Bus: "virtio",
		},
		Boot: &libvirtxml.DomainDeviceBoot{
			Order: 1,
		},
	})

	if p.CDRomPath != "" {
		domain.Devices.Disks = append(domain.Devices.Disks, libvirtxml.DomainDisk{
			Device: "cdrom",
			Driver: &libvirtxml.DomainDiskDriver{
				Name: "qemu",
				Type: "raw",
			},
			Source: &libvirtxml.DomainDiskSource{
				File: &libvirtxml.DomainDiskSourceFile{
					File: p.CDRomPath,
				},
			},
			Target: &libvirtxml.DomainDiskTarget{
				Dev: "sda",
				Bus: "sata",
			},
			ReadOnly: &libvirtxml.DomainDiskReadOnly{},
			Boot: &libvirtxml.DomainDeviceBoot{
				Order: 2,
			},
		})
	}

	iface := libvirtxml.DomainInterface{
		Source: &libvirtxml.DomainInterfaceSource{
			Network: &libvirtxml.DomainInterfaceSourceNetwork{
				Network: network,
			},
		},
		Model: &libvirtxml.DomainInterfaceModel{
			Type: "virtio",
		},
	}
	if p.MAC != "" {
		iface.MAC = &libvirtxml.DomainInterfaceMAC{Address: p.MAC}
	}
	domain.Devices.Interfaces = append(domain.Devices.Interfaces, iface)

	domain.Devices.Serials = []libvirtxml.DomainSerial{
		{
			Source: &libvirtxml.DomainChardevSource{
				Pty: &libvirtxml.DomainChardevSourcePty{},
			},
			Target: &libvirtxml.DomainSerialTarget{
				Port: func() *uint { p := uint(0); return &p }(),
			},
		},
	}
	domain.Devices.Consoles = []libvirtxml.DomainConsole{
		{
			Source: &libvirtxml.DomainChardevSource{
				Pty: &libvirtxml.DomainChardevSourcePty{},
			},
			Target: &libvirtxml.DomainConsoleTarget{
				Type: "serial",
				Port: func() *uint { p := uint(0); return &p }(),
			},
		},
	}

	xml, err := domain.Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal domain XML: %w", err)
	}

	return xml, nil
}

// InterfaceInfo is the first network interface of a defined domain.
type InterfaceInfo struct {
	MAC     string
	Network string
}

// ParseInterface extracts the MAC address and source network of the first
// network interface in a domain XML description.
func ParseInterface(domainXML string) (*InterfaceInfo, error) {
	var domain libvirtxml.Domain
	if err := domain.Unmarshal(domainXML); err != nil {
		return nil, fmt.Errorf("failed to parse domain XML: %w", err)
	}
	if domain.Devices == nil {
		return nil, fmt.Errorf("domain %s has no devices", domain.Name)
	}

	for _, iface := range domain.Devices.Interfaces {
		if iface.MAC == nil || iface.MAC.Address == "" {
			continue
		}
		info := &InterfaceInfo{MAC: iface.MAC.Address}
		if iface.Source != nil && iface.Source.Network != nil {
			info.Network = iface.Source.Network.Network
		}
		return info, nil
	}
	return nil, fmt.Errorf("domain %s has no network interface with a MAC address", domain.Name)
}
