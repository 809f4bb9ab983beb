package storage

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/kdomanski/iso9660"
)

func writeQCOW2(t *testing.T, path string, virtualSize uint64) {
	t.Helper()
	data := make([]byte, 512)
	copy(data, qcow2Magic)
	binary.BigEndian.PutUint32(data[4:], 3)
	binary.BigEndian.PutUint64(data[qcow2SizeOffset:], virtualSize)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func writeISO(t *testing.T, path, label string) {
	t.Helper()
	w, err := iso9660.NewWriter()
	if err != nil {
		t.Fatalf("failed to create ISO writer: %v", err)
	}
	defer func() { _ = w.Cleanup() }()

	if err := w.AddFile(bytes.NewReader([]byte("installer")), "README"); err != nil {
		t.Fatalf("failed to add file: %v", err)
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	if err := w.WriteTo(f, label); err != nil {
		t.Fatalf("failed to write ISO: %v", err)
	}
}

func TestInspectImage(t *testing.T) {
	tests := []struct {
		name       string
		setupFile  func(*testing.T, string)
		wantFormat VolumeFormat
		wantSize   uint64
		wantISO    bool
		wantLabel  string
		wantErr    bool
	}{
		{
			name: "qcow2 reads virtual size from header",
			setupFile: func(t *testing.T, path string) {
				writeQCOW2(t, path, 20*1024*1024*1024)
			},
			wantFormat: VolumeFormatQCOW2,
			wantSize:   20 * 1024 * 1024 * 1024,
		},
		{
			name: "bootable raw image uses file size",
			setupFile: func(t *testing.T, path string) {
				data := make([]byte, 4096)
				data[510] = 0x55
				data[511] = 0xaa
				if err := os.WriteFile(path, data, 0644); err != nil {
					t.Fatal(err)
				}
			},
			wantFormat: VolumeFormatRaw,
			wantSize:   4096,
		},
		{
			name: "iso image",
			setupFile: func(t *testing.T, path string) {
				writeISO(t, path, "DEBIAN")
			},
			wantFormat: VolumeFormatRaw,
			wantISO:    true,
			wantLabel:  "DEBIAN",
		},
		{
			name: "non-bootable raw image",
			setupFile: func(t *testing.T, path string) {
				if err := os.WriteFile(path, make([]byte, 512), 0644); err != nil {
					t.Fatal(err)
				}
			},
			wantErr: true,
		},
		{
			name: "truncated qcow2 header",
			setupFile: func(t *testing.T, path string) {
				if err := os.WriteFile(path, qcow2Magic, 0644); err != nil {
					t.Fatal(err)
				}
			},
			wantErr: true,
		},
		{
			name: "file too small",
			setupFile: func(t *testing.T, path string) {
				if err := os.WriteFile(path, []byte{0x01, 0x02}, 0644); err != nil {
					t.Fatal(err)
				}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "image")
			tt.setupFile(t, path)

			info, err := InspectImage(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("InspectImage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if info.Format != tt.wantFormat {
				t.Errorf("Format = %s, want %s", info.Format, tt.wantFormat)
			}
			if tt.wantSize != 0 && info.VirtualSize != tt.wantSize {
				t.Errorf("VirtualSize = %d, want %d", info.VirtualSize, tt.wantSize)
			}
			if info.ISO != tt.wantISO {
				t.Errorf("ISO = %v, want %v", info.ISO, tt.wantISO)
			}
			if info.Label != tt.wantLabel {
				t.Errorf("Label = %q, want %q", info.Label, tt.wantLabel)
			}
			if tt.wantISO && info.VirtualSize != info.FileSize {
				t.Errorf("ISO VirtualSize = %d, want file size %d", info.VirtualSize, info.FileSize)
			}
		})
	}
}

func TestInspectImage_Missing(t *testing.T) {
	if _, err := InspectImage(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("InspectImage() expected error for missing file")
	}
}
