// Package storage manages the libvirt pool and volumes backing machines.
//
// Every machine owns exactly one volume, named after the machine, in a
// single pool (the "default" pool unless configured otherwise):
//   - disk installer: the built image is inspected and uploaded into a
//     volume of the same format and virtual size
//   - cdrom installer: an empty raw volume of the declared size is the
//     install target and the image is attached separately as a CD
//
// Format Detection:
//
// Images are recognized from their headers in pure Go:
//   - QCOW2: magic "QFI\xfb" at offset 0, virtual size at header offset 24
//   - ISO 9660: a readable primary volume descriptor
//   - RAW: MBR signature 0x55aa at offset 510
//
// Consumer-Side Interface:
//
// Manager depends on LibvirtClient, the subset of *libvirt.Libvirt it
// calls, so tests run against an in-memory mock.
package storage
