package libvirt

import (
	"errors"

	"github.com/digitalocean/go-libvirt"
)

// IsNotFound reports whether err is libvirt's "no such object" error for a
// domain, network, storage pool, or storage volume.
func IsNotFound(err error) bool {
	var lerr libvirt.Error
	if !errors.As(err, &lerr) {
		return false
	}
	switch lerr.Code {
	case uint32(libvirt.ErrNoDomain),
		uint32(libvirt.ErrNoNetwork),
		uint32(libvirt.ErrNoStoragePool),
		uint32(libvirt.ErrNoStorageVol):
		return true
	}
	return false
}
