package storage

import (
	"fmt"
	"io"

	"github.com/digitalocean/go-libvirt"
	libvirtxml "libvirt.org/go/libvirtxml"
)

// mockLibvirtClient is an in-memory implementation of LibvirtClient.
type mockLibvirtClient struct {
	pools   map[string]*mockPool
	volumes map[string]map[string]*mockVolume // pool name -> volume name -> volume

	uploadErr error
	lookupErr error // Returned by StorageVolLookupByName when set
	poolXML   []string
}

type mockPool struct {
	name      string
	state     libvirt.StoragePoolState
	autostart bool
}

type mockVolume struct {
	name     string
	format   string
	capacity uint64
	data     []byte
}

func newMockLibvirtClient() *mockLibvirtClient {
	return &mockLibvirtClient{
		pools:   make(map[string]*mockPool),
		volumes: make(map[string]map[string]*mockVolume),
	}
}

// addPool registers a running pool.
func (m *mockLibvirtClient) addPool(name string) {
	m.pools[name] = &mockPool{name: name, state: libvirt.StoragePoolRunning}
	m.volumes[name] = make(map[string]*mockVolume)
}

func (m *mockLibvirtClient) StoragePoolLookupByName(name string) (libvirt.StoragePool, error) {
	if _, ok := m.pools[name]; !ok {
		return libvirt.StoragePool{}, noPool(name)
	}
	return libvirt.StoragePool{Name: name}, nil
}

func (m *mockLibvirtClient) StoragePoolDefineXML(xml string, flags uint32) (libvirt.StoragePool, error) {
	var def libvirtxml.StoragePool
	if err := def.Unmarshal(xml); err != nil {
		return libvirt.StoragePool{}, fmt.Errorf("invalid pool XML: %w", err)
	}
	if _, ok := m.pools[def.Name]; ok {
		return libvirt.StoragePool{}, fmt.Errorf("storage pool already exists: %s", def.Name)
	}
	m.poolXML = append(m.poolXML, xml)
	m.pools[def.Name] = &mockPool{name: def.Name, state: libvirt.StoragePoolInactive}
	m.volumes[def.Name] = make(map[string]*mockVolume)
	return libvirt.StoragePool{Name: def.Name}, nil
}

func (m *mockLibvirtClient) StoragePoolCreate(pool libvirt.StoragePool, flags libvirt.StoragePoolCreateFlags) error {
	p, ok := m.pools[pool.Name]
	if !ok {
		return noPool(pool.Name)
	}
	p.state = libvirt.StoragePoolRunning
	return nil
}

func (m *mockLibvirtClient) StoragePoolBuild(pool libvirt.StoragePool, flags libvirt.StoragePoolBuildFlags) error {
	if _, ok := m.pools[pool.Name]; !ok {
		return noPool(pool.Name)
	}
	return nil
}

func (m *mockLibvirtClient) StoragePoolSetAutostart(pool libvirt.StoragePool, autostart int32) error {
	p, ok := m.pools[pool.Name]
	if !ok {
		return noPool(pool.Name)
	}
	p.autostart = autostart == 1
	return nil
}

func (m *mockLibvirtClient) StoragePoolUndefine(pool libvirt.StoragePool) error {
	if _, ok := m.pools[pool.Name]; !ok {
		return noPool(pool.Name)
	}
	delete(m.pools, pool.Name)
	delete(m.volumes, pool.Name)
	return nil
}

func (m *mockLibvirtClient) StoragePoolGetInfo(pool libvirt.StoragePool) (uint8, uint64, uint64, uint64, error) {
	p, ok := m.pools[pool.Name]
	if !ok {
		return 0, 0, 0, 0, noPool(pool.Name)
	}
	return uint8(p.state), 0, 0, 0, nil
}

func (m *mockLibvirtClient) StorageVolLookupByName(pool libvirt.StoragePool, name string) (libvirt.StorageVol, error) {
	if m.lookupErr != nil {
		return libvirt.StorageVol{}, m.lookupErr
	}
	vols, ok := m.volumes[pool.Name]
	if !ok {
		return libvirt.StorageVol{}, noPool(pool.Name)
	}
	if _, ok := vols[name]; !ok {
		return libvirt.StorageVol{}, noVolume(name)
	}
	return libvirt.StorageVol{Pool: pool.Name, Name: name}, nil
}

func (m *mockLibvirtClient) StorageVolCreateXML(pool libvirt.StoragePool, xml string, flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error) {
	vols, ok := m.volumes[pool.Name]
	if !ok {
		return libvirt.StorageVol{}, noPool(pool.Name)
	}

	var def libvirtxml.StorageVolume
	if err := def.Unmarshal(xml); err != nil {
		return libvirt.StorageVol{}, fmt.Errorf("invalid volume XML: %w", err)
	}
	if _, ok := vols[def.Name]; ok {
		return libvirt.StorageVol{}, fmt.Errorf("storage volume already exists: %s", def.Name)
	}

	vol := &mockVolume{
		name: def.Name,
	}
	if def.Capacity != nil {
		vol.capacity = def.Capacity.Value
	}
	if def.Target != nil && def.Target.Format != nil {
		vol.format = def.Target.Format.Type
	}
	vols[def.Name] = vol

	return libvirt.StorageVol{Pool: pool.Name, Name: def.Name}, nil
}

func (m *mockLibvirtClient) StorageVolDelete(vol libvirt.StorageVol, flags libvirt.StorageVolDeleteFlags) error {
	vols, ok := m.volumes[vol.Pool]
	if !ok {
		return noPool(vol.Pool)
	}
	if _, ok := vols[vol.Name]; !ok {
		return noVolume(vol.Name)
	}
	delete(vols, vol.Name)
	return nil
}

func (m *mockLibvirtClient) StorageVolUpload(vol libvirt.StorageVol, reader io.Reader, offset uint64, length uint64, flags libvirt.StorageVolUploadFlags) error {
	v, err := m.volume(vol)
	if err != nil {
		return err
	}
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(io.LimitReader(reader, int64(length)))
	if err != nil {
		return fmt.Errorf("failed to read data: %w", err)
	}
	v.data = data
	return nil
}

func (m *mockLibvirtClient) volume(vol libvirt.StorageVol) (*mockVolume, error) {
	vols, ok := m.volumes[vol.Pool]
	if !ok {
		return nil, noPool(vol.Pool)
	}
	v, ok := vols[vol.Name]
	if !ok {
		return nil, noVolume(vol.Name)
	}
	return v, nil
}

func noPool(name string) error {
	return libvirt.Error{Code: uint32(libvirt.ErrNoStoragePool), Message: "Storage pool not found: " + name}
}

func noVolume(name string) error {
	return libvirt.Error{Code: uint32(libvirt.ErrNoStorageVol), Message: "Storage volume not found: " + name}
}
