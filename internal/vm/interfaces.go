package vm

import (
	"context"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/virtcompose/internal/actions"
	"github.com/jbweber/virtcompose/internal/config"
	"github.com/jbweber/virtcompose/internal/image"
	"github.com/jbweber/virtcompose/internal/storage"
)

// LibvirtClient defines the libvirt operations needed for machine management.
//
// In production, this is satisfied by *libvirt.Libvirt directly.
// In tests, this is satisfied by mock implementations.
type LibvirtClient interface {
	// ConnectListAllDomains lists defined domains
	ConnectListAllDomains(NeedResults int32, Flags libvirt.ConnectListAllDomainsFlags) (rDomains []libvirt.Domain, rRet uint32, err error)

	// DomainLookupByName looks up a domain by name
	DomainLookupByName(Name string) (libvirt.Domain, error)

	// DomainDefineXML defines a domain from XML
	DomainDefineXML(XML string) (libvirt.Domain, error)

	// DomainCreate starts a domain
	DomainCreate(Dom libvirt.Domain) error

	// DomainGetState gets the state of a domain
	DomainGetState(Dom libvirt.Domain, Flags uint32) (rState int32, rReason int32, err error)

	// DomainShutdownFlags asks the guest to shut down
	DomainShutdownFlags(Dom libvirt.Domain, Flags libvirt.DomainShutdownFlagValues) error

	// DomainDestroy force-stops a domain
	DomainDestroy(Dom libvirt.Domain) error

	// DomainUndefineFlags undefines a domain with flags (e.g., NVRAM cleanup)
	DomainUndefineFlags(Dom libvirt.Domain, Flags libvirt.DomainUndefineFlagsValues) error

	// DomainGetXMLDesc returns the live domain XML
	DomainGetXMLDesc(Dom libvirt.Domain, Flags libvirt.DomainXMLFlags) (string, error)

	// DomainSendKey injects one key event
	DomainSendKey(Dom libvirt.Domain, Codeset uint32, Holdtime uint32, Keycodes []uint32, Flags uint32) error

	// DomainSetMetadata and DomainGetMetadata store the virt-compose record
	DomainSetMetadata(Dom libvirt.Domain, Type int32, Metadata libvirt.OptString, Key libvirt.OptString, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) error
	DomainGetMetadata(Dom libvirt.Domain, Type int32, Uri libvirt.OptString, Flags libvirt.DomainModificationImpact) (string, error)

	// Network operations for EnsureNetworks and address lookup
	NetworkLookupByName(Name string) (libvirt.Network, error)
	NetworkDefineXML(XML string) (libvirt.Network, error)
	NetworkCreate(Net libvirt.Network) error
	NetworkIsActive(Net libvirt.Network) (int32, error)
	NetworkSetAutostart(Net libvirt.Network, Autostart int32) error
	NetworkGetDhcpLeases(Net libvirt.Network, Mac libvirt.OptString, NeedResults int32, Flags uint32) (rLeases []libvirt.NetworkDhcpLease, rRet uint32, err error)
}

// StorageManager defines the storage operations needed for machine management.
//
// In production, this is satisfied by *storage.Manager.
type StorageManager interface {
	EnsurePool(ctx context.Context, name, path string) error
	VolumeExists(ctx context.Context, poolName, volumeName string) (bool, error)
	ImportImage(ctx context.Context, poolName, volumeName, filePath string) (*storage.ImageInfo, error)
	CreateBlankVolume(ctx context.Context, poolName, volumeName string, capacity uint64) error
	DeleteVolume(ctx context.Context, poolName, volumeName string) error
}

// ImageBuilder builds the boot image of a machine. Satisfied by *image.Builder.
type ImageBuilder interface {
	Build(ctx context.Context, name string, img *config.ImageSpec, opts image.Options) (*image.Result, error)
}

// ActionExecutor runs first-boot actions. Satisfied by *actions.Executor.
type ActionExecutor interface {
	Check(list config.Actions, substitutions map[string]string) error
	Execute(ctx context.Context, target actions.Target, list config.Actions, substitutions map[string]string) error
}
