// Package image builds machine boot images with packer.
package image

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/virtcompose/internal/config"
	"github.com/jbweber/virtcompose/internal/logging"
)

// Runner runs an external command in dir.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) error
}

// ExecRunner runs commands as subprocesses, streaming their output.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Run runs name with args in dir and waits for it to finish.
func (r ExecRunner) Run(ctx context.Context, dir, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", cmd.String(), err)
	}
	return nil
}

// Options control a build.
type Options struct {
	Force bool   // Rebuild even when the output is up to date
	Only  string // Passed to packer build --only
}

// Result describes the artifact of a build.
type Result struct {
	Output string
	Built  bool // The image was (re)built by this call
}

// Builder builds images with packer.
type Builder struct {
	Runner Runner
	Packer string // packer binary
	Logger *slog.Logger
}

// NewBuilder creates a builder that runs packer as a subprocess.
func NewBuilder(logger *slog.Logger) *Builder {
	return &Builder{
		Runner: ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr},
		Packer: "packer",
		Logger: logging.Ensure(logger),
	}
}

// NeedsBuild reports whether the image output is missing or older than its
// recipe.
func NeedsBuild(img *config.ImageSpec) (bool, error) {
	out, err := os.Stat(img.Output)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat image output: %w", err)
	}

	recipe, err := os.Stat(img.Packerfile)
	if err != nil {
		return false, fmt.Errorf("failed to stat packerfile: %w", err)
	}
	return out.ModTime().Before(recipe.ModTime()), nil
}

// Build builds the image when needed. With opts.Only set, packer may
// legitimately produce no output for this image; the result then has an
// empty Output.
func (b *Builder) Build(ctx context.Context, name string, img *config.ImageSpec, opts Options) (*Result, error) {
	logger := logging.Ensure(b.Logger).With("image", name)

	needed := opts.Force
	if !needed {
		var err error
		if needed, err = NeedsBuild(img); err != nil {
			return nil, err
		}
	}
	if !needed {
		logger.Debug("image up to date", "output", img.Output)
		return &Result{Output: img.Output}, nil
	}

	logger.Info("building image", "packerfile", img.Packerfile)
	recipe, cleanup, err := convertRecipe(img.Packerfile)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	dir := img.Context
	if dir == "" {
		dir = filepath.Dir(img.Packerfile)
	}

	if err := b.Runner.Run(ctx, dir, b.packer(), "init", recipe); err != nil {
		return nil, fmt.Errorf("failed to initialize packer for image %s: %w", name, err)
	}

	args := []string{"build", "--force", "--parallel-builds=1"}
	if opts.Only != "" {
		args = append(args, "--only="+opts.Only)
	}
	args = append(args, recipe)
	if err := b.Runner.Run(ctx, dir, b.packer(), args...); err != nil {
		return nil, fmt.Errorf("failed to build image %s: %w", name, err)
	}

	if _, err := os.Stat(img.Output); err != nil {
		if opts.Only != "" {
			logger.Info("no output produced for filtered build", "only", opts.Only)
			return &Result{Built: true}, nil
		}
		return nil, fmt.Errorf("image %s: packer finished without producing %s", name, img.Output)
	}

	logger.Info("image built", "output", img.Output)
	return &Result{Output: img.Output, Built: true}, nil
}

func (b *Builder) packer() string {
	if b.Packer == "" {
		return "packer"
	}
	return b.Packer
}

// convertRecipe writes the YAML (or JSON) packerfile as a .pkr.json file
// next to it so relative paths in the recipe keep resolving. HCL
// packerfiles (.pkr.hcl) are passed to packer unchanged.
func convertRecipe(packerfile string) (string, func(), error) {
	if strings.HasSuffix(packerfile, ".pkr.hcl") {
		abs, err := filepath.Abs(packerfile)
		if err != nil {
			return "", nil, err
		}
		if _, err := os.Stat(abs); err != nil {
			return "", nil, fmt.Errorf("failed to read packerfile: %w", err)
		}
		return abs, func() {}, nil
	}

	data, err := os.ReadFile(packerfile)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read packerfile: %w", err)
	}

	var content interface{}
	if err := yaml.Unmarshal(data, &content); err != nil {
		return "", nil, fmt.Errorf("failed to parse packerfile %s: %w", packerfile, err)
	}
	if _, ok := content.(map[string]interface{}); !ok {
		return "", nil, fmt.Errorf("packerfile %s must contain a mapping", packerfile)
	}

	tmp, err := os.CreateTemp(filepath.Dir(packerfile), ".virt-compose-*.pkr.json")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create packer recipe: %w", err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(content); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write packer recipe: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to write packer recipe: %w", err)
	}

	abs, err := filepath.Abs(tmp.Name())
	if err != nil {
		cleanup()
		return "", nil, err
	}
	return abs, cleanup, nil
}
