package storage

import "fmt"

const (
	// DefaultPool is the libvirt pool machine volumes are created in.
	DefaultPool = "default"
	// DefaultPoolPath is where a missing dir pool is created.
	DefaultPoolPath = "/var/lib/libvirt/images"
)

// VolumeFormat is the on-disk format of a volume or image.
type VolumeFormat string

const (
	VolumeFormatQCOW2 VolumeFormat = "qcow2"
	VolumeFormatRaw   VolumeFormat = "raw" // Also used for ISO images
)

// VolumeSpec describes a volume to create.
type VolumeSpec struct {
	Name          string // The machine name for machine disks
	Format        VolumeFormat
	CapacityBytes uint64 // Virtual size
}

// Validate checks that the volume can be created.
func (v *VolumeSpec) Validate() error {
	switch {
	case v.Name == "":
		return fmt.Errorf("volume name is required")
	case v.Format == "":
		return fmt.Errorf("volume format is required")
	case v.Format != VolumeFormatQCOW2 && v.Format != VolumeFormatRaw:
		return fmt.Errorf("invalid volume format: %s (must be qcow2 or raw)", v.Format)
	case v.CapacityBytes == 0:
		return fmt.Errorf("volume capacity must be greater than 0")
	}
	return nil
}
