package vm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/virtcompose/internal/config"
	vclibvirt "github.com/jbweber/virtcompose/internal/libvirt"
	"github.com/jbweber/virtcompose/internal/logging"
	"github.com/jbweber/virtcompose/internal/status"
	"github.com/jbweber/virtcompose/internal/storage"
)

const (
	// DefaultStopTimeout is how long a guest gets to power off after the
	// ACPI shutdown request before it is destroyed.
	DefaultStopTimeout = 10 * time.Second

	// DefaultProvisionStopTimeout bounds the shutdown that follows first-boot
	// actions.
	DefaultProvisionStopTimeout = time.Minute

	// DefaultPollInterval is the state polling period while waiting for a
	// guest to power off.
	DefaultPollInterval = time.Second

	// DefaultKeyInterval is the pause after each injected key event.
	DefaultKeyInterval = 50 * time.Millisecond
)

var (
	// ErrInterrupted is returned when the context is cancelled mid-batch.
	ErrInterrupted = errors.New("interrupted")

	// ErrUnknownMachine is returned for names the manifest does not declare.
	ErrUnknownMachine = errors.New("unknown machine")

	// ErrUnknownImage is returned for image names the manifest does not declare.
	ErrUnknownImage = errors.New("unknown image")
)

// Config holds engine settings that do not come from the manifest.
type Config struct {
	Project              string // Manifest directory, recorded on every domain
	Pool                 string // Storage pool for machine disks
	PoolPath             string // Target path used if the pool has to be created
	StopTimeout          time.Duration
	ProvisionStopTimeout time.Duration
	PollInterval         time.Duration
	KeyInterval          time.Duration
	Substitutions        map[string]string // Variables for type action templates
	Logger               *slog.Logger
}

// Engine converges the machines of one manifest.
type Engine struct {
	manifest *config.Manifest
	lv       LibvirtClient
	storage  StorageManager
	builder  ImageBuilder
	executor ActionExecutor
	cfg      Config
	logger   *slog.Logger
}

// NewEngine creates an engine. Zero Config fields take their defaults.
func NewEngine(m *config.Manifest, lv LibvirtClient, sm StorageManager, builder ImageBuilder, executor ActionExecutor, cfg Config) *Engine {
	if cfg.Pool == "" {
		cfg.Pool = storage.DefaultPool
	}
	if cfg.PoolPath == "" {
		cfg.PoolPath = storage.DefaultPoolPath
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.ProvisionStopTimeout == 0 {
		cfg.ProvisionStopTimeout = DefaultProvisionStopTimeout
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.KeyInterval == 0 {
		cfg.KeyInterval = DefaultKeyInterval
	}
	return &Engine{
		manifest: m,
		lv:       lv,
		storage:  sm,
		builder:  builder,
		executor: executor,
		cfg:      cfg,
		logger:   logging.Ensure(cfg.Logger),
	}
}

// Manifest returns the manifest the engine was created with.
func (e *Engine) Manifest() *config.Manifest {
	return e.manifest
}

// machines resolves a name list against the manifest. An empty list means
// every declared machine, in name order.
func (e *Engine) machines(names []string) ([]string, error) {
	if len(names) == 0 {
		return e.manifest.MachineNames(), nil
	}
	for _, name := range names {
		if _, ok := e.manifest.Machines[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMachine, name)
		}
	}
	return names, nil
}

// images resolves an image name list the same way.
func (e *Engine) images(names []string) ([]string, error) {
	if len(names) == 0 {
		return e.manifest.ImageNames(), nil
	}
	for _, name := range names {
		if _, ok := e.manifest.Images[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownImage, name)
		}
	}
	return names, nil
}

// lookup returns the domain and its state. A missing domain is reported
// as StateAbsent with a nil error.
func (e *Engine) lookup(name string) (libvirt.Domain, status.DomainState, int32, error) {
	dom, err := e.lv.DomainLookupByName(name)
	if err != nil {
		if vclibvirt.IsNotFound(err) {
			return libvirt.Domain{}, status.StateAbsent, 0, nil
		}
		return libvirt.Domain{}, "", 0, fmt.Errorf("failed to look up domain %s: %w", name, err)
	}
	state, _, err := e.lv.DomainGetState(dom, 0)
	if err != nil {
		return dom, "", 0, fmt.Errorf("failed to get state of %s: %w", name, err)
	}
	return dom, status.FromLibvirt(state), state, nil
}

// interrupted marks err as an interruption when ctx has been cancelled.
func interrupted(ctx context.Context, err error) error {
	if err == nil || ctx.Err() == nil || errors.Is(err, ErrInterrupted) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInterrupted, err)
}
