package storage

import (
	"errors"
	"fmt"
	"io"

	"github.com/digitalocean/go-libvirt"
)

// LibvirtClient is the part of go-libvirt the manager drives. It is
// satisfied by *libvirt.Libvirt.
type LibvirtClient interface {
	StoragePoolLookupByName(Name string) (libvirt.StoragePool, error)
	StoragePoolDefineXML(XML string, Flags uint32) (libvirt.StoragePool, error)
	StoragePoolCreate(Pool libvirt.StoragePool, Flags libvirt.StoragePoolCreateFlags) error
	StoragePoolBuild(Pool libvirt.StoragePool, Flags libvirt.StoragePoolBuildFlags) error
	StoragePoolSetAutostart(Pool libvirt.StoragePool, Autostart int32) error
	StoragePoolUndefine(Pool libvirt.StoragePool) error
	StoragePoolGetInfo(Pool libvirt.StoragePool) (rState uint8, rCapacity uint64, rAllocation uint64, rAvailable uint64, err error)
	StorageVolLookupByName(Pool libvirt.StoragePool, Name string) (libvirt.StorageVol, error)
	StorageVolCreateXML(Pool libvirt.StoragePool, XML string, Flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error)
	StorageVolDelete(Vol libvirt.StorageVol, Flags libvirt.StorageVolDeleteFlags) error
	StorageVolUpload(Vol libvirt.StorageVol, outStream io.Reader, Offset uint64, Length uint64, Flags libvirt.StorageVolUploadFlags) error
}

// Manager creates and removes the pool volumes backing machine disks.
type Manager struct {
	client LibvirtClient
}

// NewManager returns a Manager using client.
func NewManager(client LibvirtClient) *Manager {
	return &Manager{client: client}
}

func (m *Manager) pool(name string) (libvirt.StoragePool, error) {
	pool, err := m.client.StoragePoolLookupByName(name)
	if err != nil {
		return libvirt.StoragePool{}, fmt.Errorf("failed to look up pool %s: %w", name, err)
	}
	return pool, nil
}

func (m *Manager) volume(poolName, volumeName string) (libvirt.StorageVol, error) {
	pool, err := m.pool(poolName)
	if err != nil {
		return libvirt.StorageVol{}, err
	}
	vol, err := m.client.StorageVolLookupByName(pool, volumeName)
	if err != nil {
		return libvirt.StorageVol{}, fmt.Errorf("failed to look up volume %s in pool %s: %w", volumeName, poolName, err)
	}
	return vol, nil
}

// hasCode reports whether err is a libvirt error with the given code.
func hasCode(err error, code libvirt.ErrorNumber) bool {
	var lerr libvirt.Error
	return errors.As(err, &lerr) && lerr.Code == uint32(code)
}
