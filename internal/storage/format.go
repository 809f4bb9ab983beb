package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/kdomanski/iso9660"
)

// Magic bytes and signatures for disk image format detection
var (
	// qcow2Magic is "QFI" followed by 0xfb at offset 0.
	// Reference: https://www.qemu.org/docs/master/interop/qcow2.html
	qcow2Magic = []byte{0x51, 0x46, 0x49, 0xfb}

	// mbrSignature is the boot sector signature at offset 510. GPT disks
	// carry it too in their protective MBR.
	mbrSignature = []byte{0x55, 0xaa}
)

// qcow2SizeOffset is the header offset of the big-endian virtual size.
const qcow2SizeOffset = 24

// ImageInfo describes a built image artifact.
type ImageInfo struct {
	Path        string
	Format      VolumeFormat
	VirtualSize uint64 // Guest-visible size in bytes
	FileSize    uint64 // Bytes on disk, the amount uploaded
	ISO         bool   // ISO 9660 filesystem, bootable as a CD
	Label       string // ISO volume label
}

// InspectImage reads the headers of an image file to find its format and
// virtual size.
//
// Recognized images:
//   - QCOW2: magic "QFI\xfb" at offset 0, virtual size from the header
//   - ISO 9660: a primary volume descriptor at sector 16, uploaded as raw
//   - RAW: MBR signature 0x55 0xaa at offset 510, virtual size is the file size
//
// Anything else is rejected so arbitrary files are not imported as disks.
func InspectImage(filePath string) (*ImageInfo, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	info := &ImageInfo{Path: filePath, FileSize: uint64(st.Size())}

	header := make([]byte, qcow2SizeOffset+8)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("file too small to be valid image: %w", err)
	}
	if n < len(qcow2Magic) {
		return nil, fmt.Errorf("file too small to be valid image (< %d bytes)", len(qcow2Magic))
	}

	if bytes.Equal(header[:4], qcow2Magic) {
		if n < len(header) {
			return nil, fmt.Errorf("truncated qcow2 header")
		}
		info.Format = VolumeFormatQCOW2
		info.VirtualSize = binary.BigEndian.Uint64(header[qcow2SizeOffset:])
		return info, nil
	}

	if img, err := iso9660.OpenImage(f); err == nil {
		info.Format = VolumeFormatRaw
		info.VirtualSize = info.FileSize
		info.ISO = true
		if label, err := img.Label(); err == nil {
			info.Label = label
		}
		return info, nil
	}

	sig := make([]byte, 2)
	if _, err := f.ReadAt(sig, 510); err != nil {
		return nil, fmt.Errorf("file too small for boot sector (< 512 bytes): %w", err)
	}
	if bytes.Equal(sig, mbrSignature) {
		info.Format = VolumeFormatRaw
		info.VirtualSize = info.FileSize
		return info, nil
	}

	return nil, fmt.Errorf("unsupported or invalid image: not qcow2, not an ISO, and missing boot sector signature (0x55aa at offset 510)")
}
