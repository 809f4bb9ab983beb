package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/digitalocean/go-libvirt"
	libvirtxml "libvirt.org/go/libvirtxml"
)

// EnsurePool makes sure the named pool exists and is running. A missing
// pool is defined as a dir pool at path, built, started, and marked
// autostart.
func (m *Manager) EnsurePool(ctx context.Context, name, path string) error {
	pool, err := m.client.StoragePoolLookupByName(name)
	if hasCode(err, libvirt.ErrNoStoragePool) {
		return m.createDirPool(name, path)
	}
	if err != nil {
		return fmt.Errorf("failed to look up pool %s: %w", name, err)
	}

	state, _, _, _, err := m.client.StoragePoolGetInfo(pool)
	if err != nil {
		return fmt.Errorf("failed to get info for pool %s: %w", name, err)
	}
	if libvirt.StoragePoolState(state) == libvirt.StoragePoolRunning {
		return nil
	}
	if err := m.client.StoragePoolCreate(pool, 0); err != nil {
		return fmt.Errorf("failed to start pool %s: %w", name, err)
	}
	return nil
}

func (m *Manager) createDirPool(name, path string) error {
	poolXML, err := dirPoolXML(name, path)
	if err != nil {
		return fmt.Errorf("failed to generate pool XML: %w", err)
	}

	pool, err := m.client.StoragePoolDefineXML(poolXML, 0)
	if err != nil {
		return fmt.Errorf("failed to define pool %s: %w", name, err)
	}

	undefine := func(err error) error {
		if undefErr := m.client.StoragePoolUndefine(pool); undefErr != nil {
			return fmt.Errorf("%w (undefine also failed: %v)", err, undefErr)
		}
		return err
	}
	if err := m.client.StoragePoolBuild(pool, 0); err != nil {
		return undefine(fmt.Errorf("failed to build pool %s: %w", name, err))
	}
	if err := m.client.StoragePoolCreate(pool, 0); err != nil {
		return undefine(fmt.Errorf("failed to start pool %s: %w", name, err))
	}

	if err := m.client.StoragePoolSetAutostart(pool, 1); err != nil {
		return fmt.Errorf("pool %s started but autostart failed: %w", name, err)
	}
	return nil
}

// dirPoolXML describes a directory pool owned by the qemu user.
func dirPoolXML(name, path string) (string, error) {
	uid, gid, _ := GetQEMUUserGroup()
	def := &libvirtxml.StoragePool{
		Type: "dir",
		Name: name,
		Target: &libvirtxml.StoragePoolTarget{
			Path: path,
			Permissions: &libvirtxml.StoragePoolTargetPermissions{
				Owner: uid,
				Group: gid,
				Mode:  "0755",
			},
		},
	}
	out, err := def.Marshal()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
