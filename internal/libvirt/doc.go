// Package libvirt provides a client wrapper for interacting with libvirt.
//
// This package wraps github.com/digitalocean/go-libvirt to provide:
//   - Connection management (connect, disconnect, ping)
//   - Domain XML generation for compose machines
//   - Parsing of domain and network XML (interface MAC, network name)
//   - Error classification (IsNotFound)
//
// Connection Management:
//
//	client, err := libvirt.Connect(ctx, "", 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// Domain XML Generation:
//
//	xml, err := libvirt.GenerateDomainXML(libvirt.DomainParams{
//	    Name:      "m1",
//	    MemoryMiB: 2048,
//	    VCPUs:     2,
//	    Pool:      "default",
//	    Volume:    "m1",
//	})
//
// Consumer-Side Interfaces:
//
// This package does not define interfaces. Consumers (internal/vm,
// internal/storage, internal/metadata) define their own LibvirtClient
// interfaces specifying only the operations they need. The *libvirt.Libvirt
// type satisfies these interfaces implicitly.
package libvirt
