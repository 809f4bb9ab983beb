package storage

import (
	"context"
	"errors"
	"fmt"
)

// ImportImage creates a volume sized and formatted like the image at
// filePath and uploads the image into it. The volume is deleted again if
// the upload fails.
func (m *Manager) ImportImage(ctx context.Context, poolName, volumeName, filePath string) (*ImageInfo, error) {
	info, err := InspectImage(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect image %s: %w", filePath, err)
	}

	spec := VolumeSpec{
		Name:          volumeName,
		Format:        info.Format,
		CapacityBytes: info.VirtualSize,
	}
	if err := m.CreateVolume(ctx, poolName, spec); err != nil {
		return nil, fmt.Errorf("failed to create volume %s: %w", volumeName, err)
	}

	if err := m.upload(poolName, volumeName, filePath); err != nil {
		if delErr := m.DeleteVolume(ctx, poolName, volumeName); delErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to delete volume %s after upload failure: %w", volumeName, delErr))
		}
		return nil, err
	}

	return info, nil
}

// CreateBlankVolume creates an empty raw volume, the install target of a
// cdrom installer.
func (m *Manager) CreateBlankVolume(ctx context.Context, poolName, volumeName string, capacity uint64) error {
	return m.CreateVolume(ctx, poolName, VolumeSpec{
		Name:          volumeName,
		Format:        VolumeFormatRaw,
		CapacityBytes: capacity,
	})
}
