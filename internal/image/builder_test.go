package image

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jbweber/virtcompose/internal/config"
	"github.com/jbweber/virtcompose/internal/logging"
)

// mockRunner records commands and optionally writes the image output.
type mockRunner struct {
	calls   [][]string
	dirs    []string
	recipes []map[string]interface{}
	output  string // Written when "build" runs
	err     error
}

func (m *mockRunner) Run(_ context.Context, dir, name string, args ...string) error {
	m.calls = append(m.calls, append([]string{name}, args...))
	m.dirs = append(m.dirs, dir)
	if m.err != nil {
		return m.err
	}

	recipe := args[len(args)-1]
	data, err := os.ReadFile(recipe)
	if err != nil {
		return err
	}
	var content map[string]interface{}
	if err := json.Unmarshal(data, &content); err != nil {
		return err
	}
	m.recipes = append(m.recipes, content)

	if args[0] == "build" && m.output != "" {
		return os.WriteFile(m.output, []byte("image"), 0644)
	}
	return nil
}

const recipeYAML = `
source:
  qemu:
    debian:
      iso_url: debian.iso
      output_directory: output
build:
  sources: [source.qemu.debian]
`

func newTestImage(t *testing.T) *config.ImageSpec {
	t.Helper()
	dir := t.TempDir()
	packerfile := filepath.Join(dir, "debian.pkr.yml")
	if err := os.WriteFile(packerfile, []byte(recipeYAML), 0644); err != nil {
		t.Fatal(err)
	}
	return &config.ImageSpec{
		Packerfile: packerfile,
		Output:     filepath.Join(dir, "debian.qcow2"),
		Context:    dir,
	}
}

func newTestBuilder(r *mockRunner) *Builder {
	b := NewBuilder(logging.Discard())
	b.Runner = r
	return b
}

func TestBuild_MissingOutput(t *testing.T) {
	img := newTestImage(t)
	runner := &mockRunner{output: img.Output}

	res, err := newTestBuilder(runner).Build(context.Background(), "debian", img, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !res.Built || res.Output != img.Output {
		t.Errorf("Build() = %+v", res)
	}

	if len(runner.calls) != 2 {
		t.Fatalf("got %d packer calls, want 2", len(runner.calls))
	}
	if got := runner.calls[0][:2]; got[0] != "packer" || got[1] != "init" {
		t.Errorf("first call = %v, want packer init", runner.calls[0])
	}
	build := strings.Join(runner.calls[1], " ")
	if !strings.HasPrefix(build, "packer build --force --parallel-builds=1 ") {
		t.Errorf("second call = %s", build)
	}
	if strings.Contains(build, "--only") {
		t.Errorf("unexpected --only in %s", build)
	}
	if runner.dirs[1] != img.Context {
		t.Errorf("build ran in %s, want %s", runner.dirs[1], img.Context)
	}

	recipe := runner.calls[1][len(runner.calls[1])-1]
	if filepath.Dir(recipe) != filepath.Dir(img.Packerfile) || !strings.HasSuffix(recipe, ".pkr.json") {
		t.Errorf("recipe %s should be a .pkr.json next to the packerfile", recipe)
	}
	if _, ok := runner.recipes[1]["source"]; !ok {
		t.Errorf("converted recipe lost content: %v", runner.recipes[1])
	}
	if _, err := os.Stat(recipe); !os.IsNotExist(err) {
		t.Error("temporary recipe was not removed")
	}
}

func TestBuild_UpToDate(t *testing.T) {
	img := newTestImage(t)
	if err := os.WriteFile(img.Output, []byte("image"), 0644); err != nil {
		t.Fatal(err)
	}
	runner := &mockRunner{}

	res, err := newTestBuilder(runner).Build(context.Background(), "debian", img, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if res.Built {
		t.Error("up to date image was rebuilt")
	}
	if len(runner.calls) != 0 {
		t.Errorf("packer called: %v", runner.calls)
	}
}

func TestBuild_StaleOrForced(t *testing.T) {
	tests := []struct {
		name  string
		stale bool
		force bool
	}{
		{name: "recipe newer than output", stale: true},
		{name: "forced", force: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := newTestImage(t)
			if err := os.WriteFile(img.Output, []byte("old"), 0644); err != nil {
				t.Fatal(err)
			}
			if tt.stale {
				old := time.Now().Add(-time.Hour)
				if err := os.Chtimes(img.Output, old, old); err != nil {
					t.Fatal(err)
				}
			}
			runner := &mockRunner{output: img.Output}

			res, err := newTestBuilder(runner).Build(context.Background(), "debian", img, Options{Force: tt.force})
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if !res.Built || len(runner.calls) != 2 {
				t.Errorf("expected rebuild, got %+v with %d calls", res, len(runner.calls))
			}
		})
	}
}

func TestBuild_Only(t *testing.T) {
	img := newTestImage(t)
	runner := &mockRunner{}

	res, err := newTestBuilder(runner).Build(context.Background(), "debian", img, Options{Only: "qemu.other"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if res.Output != "" {
		t.Errorf("Output = %q, want empty for filtered build", res.Output)
	}
	if !strings.Contains(strings.Join(runner.calls[1], " "), "--only=qemu.other") {
		t.Errorf("build call missing --only: %v", runner.calls[1])
	}
}

func TestBuild_NoOutput(t *testing.T) {
	img := newTestImage(t)
	_, err := newTestBuilder(&mockRunner{}).Build(context.Background(), "debian", img, Options{})
	if err == nil || !strings.Contains(err.Error(), "without producing") {
		t.Errorf("Build() error = %v, want missing output error", err)
	}
}

func TestBuild_PackerFailure(t *testing.T) {
	img := newTestImage(t)
	boom := errors.New("exit status 1")
	runner := &mockRunner{err: boom}

	_, err := newTestBuilder(runner).Build(context.Background(), "debian", img, Options{})
	if !errors.Is(err, boom) {
		t.Errorf("Build() error = %v, want %v", err, boom)
	}
	if len(runner.calls) != 1 {
		t.Errorf("build ran after init failed: %v", runner.calls)
	}
}

func TestConvertRecipe_Invalid(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"scalar.yml":  "just a string",
		"invalid.yml": "a: [unclosed",
	}
	for name, content := range tests {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		if _, _, err := convertRecipe(path); err == nil {
			t.Errorf("convertRecipe(%s) expected error", name)
		}
	}
	if _, _, err := convertRecipe(filepath.Join(dir, "missing.yml")); err == nil {
		t.Error("convertRecipe() expected error for missing file")
	}
}

func TestConvertRecipe_HCLPassesThrough(t *testing.T) {
	dir := t.TempDir()
	packerfile := filepath.Join(dir, "debian.pkr.hcl")
	hcl := "source \"qemu\" \"debian\" {\n  iso_url = \"debian.iso\"\n}\n"
	if err := os.WriteFile(packerfile, []byte(hcl), 0644); err != nil {
		t.Fatal(err)
	}

	recipe, cleanup, err := convertRecipe(packerfile)
	if err != nil {
		t.Fatalf("convertRecipe() error = %v", err)
	}
	cleanup()

	if recipe != packerfile {
		t.Errorf("recipe = %s, want %s", recipe, packerfile)
	}
	data, err := os.ReadFile(packerfile)
	if err != nil {
		t.Fatalf("packerfile removed by cleanup: %v", err)
	}
	if string(data) != hcl {
		t.Errorf("packerfile rewritten: %q", data)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected no generated recipe, found %d files", len(entries))
	}

	if _, _, err := convertRecipe(filepath.Join(dir, "missing.pkr.hcl")); err == nil {
		t.Error("convertRecipe() expected error for missing HCL file")
	}
}

func TestExecRunner(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("requires /bin/sh")
	}
	dir := t.TempDir()
	r := ExecRunner{}
	if err := r.Run(context.Background(), dir, "/bin/sh", "-c", "touch marker"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "marker")); err != nil {
		t.Error("command did not run in dir")
	}
	if err := r.Run(context.Background(), dir, "/bin/sh", "-c", "exit 3"); err == nil {
		t.Error("Run() expected error for nonzero exit")
	}
}
