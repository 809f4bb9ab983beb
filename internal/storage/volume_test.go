package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestVolumeSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    VolumeSpec
		wantErr string
	}{
		{name: "valid qcow2", spec: VolumeSpec{Name: "m1", Format: VolumeFormatQCOW2, CapacityBytes: 1}},
		{name: "valid raw", spec: VolumeSpec{Name: "m1", Format: VolumeFormatRaw, CapacityBytes: 1}},
		{name: "missing name", spec: VolumeSpec{Format: VolumeFormatRaw, CapacityBytes: 1}, wantErr: "name is required"},
		{name: "missing format", spec: VolumeSpec{Name: "m1", CapacityBytes: 1}, wantErr: "format is required"},
		{name: "bad format", spec: VolumeSpec{Name: "m1", Format: "vmdk", CapacityBytes: 1}, wantErr: "invalid volume format"},
		{name: "zero capacity", spec: VolumeSpec{Name: "m1", Format: VolumeFormatRaw}, wantErr: "capacity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestVolumeLifecycle(t *testing.T) {
	ctx := context.Background()
	client := newMockLibvirtClient()
	client.addPool(DefaultPool)
	mgr := NewManager(client)

	exists, err := mgr.VolumeExists(ctx, DefaultPool, "m1")
	if err != nil || exists {
		t.Fatalf("VolumeExists() = %v, %v; want false, nil", exists, err)
	}

	spec := VolumeSpec{Name: "m1", Format: VolumeFormatQCOW2, CapacityBytes: 10 << 30}
	if err := mgr.CreateVolume(ctx, DefaultPool, spec); err != nil {
		t.Fatalf("CreateVolume() error: %v", err)
	}

	vol := client.volumes[DefaultPool]["m1"]
	if vol.capacity != 10<<30 || vol.format != "qcow2" {
		t.Errorf("created volume = %+v, want 10GiB qcow2", vol)
	}

	if err := mgr.CreateVolume(ctx, DefaultPool, spec); err == nil {
		t.Error("CreateVolume() should fail for an existing volume")
	}

	exists, err = mgr.VolumeExists(ctx, DefaultPool, "m1")
	if err != nil || !exists {
		t.Fatalf("VolumeExists() = %v, %v; want true, nil", exists, err)
	}

	if err := mgr.DeleteVolume(ctx, DefaultPool, "m1"); err != nil {
		t.Fatalf("DeleteVolume() error: %v", err)
	}
	if err := mgr.DeleteVolume(ctx, DefaultPool, "m1"); err == nil {
		t.Error("DeleteVolume() should fail for a missing volume")
	}
}

func TestVolumeExists_LookupError(t *testing.T) {
	client := newMockLibvirtClient()
	client.addPool(DefaultPool)
	client.lookupErr = errors.New("connection reset")
	mgr := NewManager(client)

	if _, err := mgr.VolumeExists(context.Background(), DefaultPool, "m1"); err == nil {
		t.Error("VolumeExists() should fail when the lookup fails for another reason")
	}
}

func TestVolumeExists_MissingPool(t *testing.T) {
	mgr := NewManager(newMockLibvirtClient())
	if _, err := mgr.VolumeExists(context.Background(), "nope", "m1"); err == nil {
		t.Error("VolumeExists() should fail when the pool is missing")
	}
}

func TestUpload(t *testing.T) {
	ctx := context.Background()
	client := newMockLibvirtClient()
	client.addPool(DefaultPool)
	mgr := NewManager(client)

	src := filepath.Join(t.TempDir(), "disk.img")
	if err := os.WriteFile(src, []byte("image-bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := mgr.upload(DefaultPool, "m1", src); err == nil {
		t.Error("upload() should fail for a missing volume")
	}

	if err := mgr.CreateBlankVolume(ctx, DefaultPool, "m1", 1024); err != nil {
		t.Fatalf("CreateBlankVolume() error: %v", err)
	}
	if err := mgr.upload(DefaultPool, "m1", src); err != nil {
		t.Fatalf("upload() error: %v", err)
	}
	if got := string(client.volumes[DefaultPool]["m1"].data); got != "image-bytes" {
		t.Errorf("uploaded data = %q", got)
	}

	client.uploadErr = errors.New("stream closed")
	err := mgr.upload(DefaultPool, "m1", src)
	if err == nil || !strings.Contains(err.Error(), "stream closed") {
		t.Errorf("upload() error = %v, want upload failure", err)
	}
}

func TestVolumeXML(t *testing.T) {
	out, err := volumeXML(VolumeSpec{Name: "m1", Format: VolumeFormatRaw, CapacityBytes: 4096})
	if err != nil {
		t.Fatalf("volumeXML() error: %v", err)
	}
	for _, want := range []string{"<name>m1</name>", `<capacity unit="B">4096</capacity>`, `<format type="raw">`} {
		if !strings.Contains(out, want) {
			t.Errorf("volume XML missing %q:\n%s", want, out)
		}
	}
}
