package storage

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/digitalocean/go-libvirt"
	libvirtxml "libvirt.org/go/libvirtxml"
)

// CreateVolume creates a volume in the pool.
func (m *Manager) CreateVolume(ctx context.Context, poolName string, spec VolumeSpec) error {
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid volume %s: %w", spec.Name, err)
	}
	pool, err := m.pool(poolName)
	if err != nil {
		return err
	}

	volXML, err := volumeXML(spec)
	if err != nil {
		return fmt.Errorf("failed to generate volume XML: %w", err)
	}
	if _, err := m.client.StorageVolCreateXML(pool, volXML, 0); err != nil {
		return fmt.Errorf("failed to create volume %s: %w", spec.Name, err)
	}
	return nil
}

// DeleteVolume deletes a volume. A missing volume is an error.
func (m *Manager) DeleteVolume(ctx context.Context, poolName, volumeName string) error {
	vol, err := m.volume(poolName, volumeName)
	if err != nil {
		return err
	}
	if err := m.client.StorageVolDelete(vol, 0); err != nil {
		return fmt.Errorf("failed to delete volume %s: %w", volumeName, err)
	}
	return nil
}

// VolumeExists reports whether the pool holds a volume named volumeName.
// A missing pool is an error.
func (m *Manager) VolumeExists(ctx context.Context, poolName, volumeName string) (bool, error) {
	pool, err := m.pool(poolName)
	if err != nil {
		return false, err
	}
	_, err = m.client.StorageVolLookupByName(pool, volumeName)
	switch {
	case err == nil:
		return true, nil
	case hasCode(err, libvirt.ErrNoStorageVol):
		return false, nil
	default:
		return false, fmt.Errorf("failed to look up volume %s: %w", volumeName, err)
	}
}

// upload streams a local file into an existing volume from offset 0.
func (m *Manager) upload(poolName, volumeName, filePath string) error {
	vol, err := m.volume(poolName, volumeName)
	if err != nil {
		return err
	}

	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filePath, err)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", filePath, err)
	}
	if err := m.client.StorageVolUpload(vol, f, 0, uint64(fi.Size()), 0); err != nil {
		return fmt.Errorf("failed to upload %s to volume %s: %w", filePath, volumeName, err)
	}
	return nil
}

// volumeXML describes a file volume owned by the qemu user.
func volumeXML(spec VolumeSpec) (string, error) {
	uid, gid, _ := GetQEMUUserGroup()
	def := &libvirtxml.StorageVolume{
		Type: "file",
		Name: spec.Name,
		Capacity: &libvirtxml.StorageVolumeSize{
			Value: spec.CapacityBytes,
			Unit:  "B",
		},
		Target: &libvirtxml.StorageVolumeTarget{
			Format: &libvirtxml.StorageVolumeTargetFormat{Type: string(spec.Format)},
			Permissions: &libvirtxml.StorageVolumeTargetPermissions{
				Owner: uid,
				Group: gid,
				Mode:  "0644",
			},
		},
	}
	out, err := def.Marshal()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
