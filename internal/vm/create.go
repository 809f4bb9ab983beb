package vm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/virtcompose/internal/config"
	"github.com/jbweber/virtcompose/internal/image"
	vclibvirt "github.com/jbweber/virtcompose/internal/libvirt"
	"github.com/jbweber/virtcompose/internal/metadata"
	"github.com/jbweber/virtcompose/internal/status"
	"github.com/jbweber/virtcompose/internal/storage"
)

// CreateOptions controls Create and Up.
type CreateOptions struct {
	Build         bool // Rebuild images even when their output is up to date
	ForceRecreate bool // Remove and recreate machines that already exist
}

// Build builds the named images, or every image when names is empty.
func (e *Engine) Build(ctx context.Context, names []string, opts image.Options) error {
	names, err := e.images(names)
	if err != nil {
		return err
	}
	for _, name := range names {
		if _, err := e.builder.Build(ctx, name, e.manifest.Images[name], opts); err != nil {
			return interrupted(ctx, fmt.Errorf("failed to build image %s: %w", name, err))
		}
	}
	return nil
}

// Create builds the images of the named machines, then creates each
// machine that is not defined yet. A machine whose image was rebuilt is
// recreated from the new image.
func (e *Engine) Create(ctx context.Context, names []string, opts CreateOptions) error {
	names, err := e.machines(names)
	if err != nil {
		return err
	}

	if err := e.storage.EnsurePool(ctx, e.cfg.Pool, e.cfg.PoolPath); err != nil {
		return fmt.Errorf("failed to ensure storage pool %s: %w", e.cfg.Pool, err)
	}

	// Each image is built at most once, before any machine changes.
	built := make(map[string]*image.Result)
	for _, name := range names {
		imageName := e.manifest.Machines[name].Image
		if _, ok := built[imageName]; ok {
			continue
		}
		res, err := e.builder.Build(ctx, imageName, e.manifest.Images[imageName], image.Options{Force: opts.Build})
		if err != nil {
			return interrupted(ctx, fmt.Errorf("failed to build image %s: %w", imageName, err))
		}
		built[imageName] = res
	}

	for _, name := range names {
		spec := e.manifest.Machines[name]
		res := built[spec.Image]
		if err := e.createMachine(ctx, name, spec, res.Output, res.Built || opts.ForceRecreate); err != nil {
			return interrupted(ctx, fmt.Errorf("failed to create machine %s: %w", name, err))
		}
	}
	return nil
}

// createMachine converges one machine to at least StateStopped. With
// force, an existing domain and volume are removed first.
//
// Whatever this call creates is removed again if a later step fails.
func (e *Engine) createMachine(ctx context.Context, name string, spec *config.MachineSpec, imagePath string, force bool) (createErr error) {
	logger := e.logger.With("machine", name)

	if err := e.executor.Check(spec.Actions, e.cfg.Substitutions); err != nil {
		return fmt.Errorf("invalid actions: %w", err)
	}

	if force {
		logger.Info("recreating machine")
		if err := e.removeMachine(ctx, name); err != nil {
			return err
		}
	}

	var (
		dom           libvirt.Domain
		removeVolume bool
		domainDefined bool
	)
	defer func() {
		if createErr != nil && (removeVolume || domainDefined) {
			if err := e.rollback(name, dom, domainDefined, removeVolume); err != nil {
				createErr = errors.Join(createErr, err)
			}
		}
	}()

	disk, err := e.prepareDisk(ctx, logger, name, spec, imagePath)
	if err != nil {
		return err
	}
	removeVolume = disk.created

	dom, state, _, err := e.lookup(name)
	if err != nil {
		return err
	}
	if _, act, _ := status.Transition(state, status.OpCreate); !act {
		logger.Debug("domain already defined")
		return nil
	}

	dom, err = e.define(logger, name, spec, disk)
	if err != nil {
		return err
	}
	domainDefined = true

	if len(spec.Actions) == 0 {
		logger.Info("machine created")
		return nil
	}
	// A disk the guest has booted from is no longer pristine.
	removeVolume = true
	if err := e.provision(ctx, logger, dom, name, spec.Actions); err != nil {
		return err
	}
	logger.Info("machine created")
	return nil
}

// machineDisk is the boot disk of a machine and, for cdrom installers,
// the installer image attached next to it.
type machineDisk struct {
	format  storage.VolumeFormat
	cdrom   string
	created bool
}

// prepareDisk makes sure the machine's volume exists. Disk installers get
// the image imported; cdrom installers get an empty raw volume of the
// installer size and boot the image as a cdrom.
func (e *Engine) prepareDisk(ctx context.Context, logger *slog.Logger, name string, spec *config.MachineSpec, imagePath string) (machineDisk, error) {
	exists, err := e.storage.VolumeExists(ctx, e.cfg.Pool, name)
	if err != nil {
		return machineDisk{}, fmt.Errorf("failed to check volume %s: %w", name, err)
	}

	if spec.Installer.Kind == config.InstallerCDRom {
		disk := machineDisk{format: storage.VolumeFormatRaw, cdrom: imagePath}
		if info, err := storage.InspectImage(imagePath); err != nil || !info.ISO {
			logger.Warn("installer image is not an ISO", "image", imagePath)
		} else {
			logger.Debug("installer image", "label", info.Label)
		}
		if exists {
			return disk, nil
		}
		logger.Info("creating blank volume", "size", spec.Installer.Size)
		if err := e.storage.CreateBlankVolume(ctx, e.cfg.Pool, name, uint64(spec.Installer.Size)); err != nil {
			return machineDisk{}, fmt.Errorf("failed to create volume %s: %w", name, err)
		}
		disk.created = true
		return disk, nil
	}

	if exists {
		info, err := storage.InspectImage(imagePath)
		if err != nil {
			return machineDisk{}, fmt.Errorf("failed to inspect image %s: %w", imagePath, err)
		}
		return machineDisk{format: info.Format}, nil
	}

	logger.Info("importing image", "image", imagePath)
	info, err := e.storage.ImportImage(ctx, e.cfg.Pool, name, imagePath)
	if err != nil {
		return machineDisk{}, fmt.Errorf("failed to import image: %w", err)
	}
	return machineDisk{format: info.Format, created: true}, nil
}

// define defines the domain and records where it came from.
func (e *Engine) define(logger *slog.Logger, name string, spec *config.MachineSpec, disk machineDisk) (libvirt.Domain, error) {
	domainXML, err := vclibvirt.GenerateDomainXML(vclibvirt.DomainParams{
		Name:       name,
		MemoryMiB:  spec.Memory,
		VCPUs:      spec.VCPUs,
		UEFI:       spec.UEFI,
		Network:    spec.Network,
		MAC:        spec.MAC,
		Pool:       e.cfg.Pool,
		Volume:     name,
		DiskFormat: string(disk.format),
		CDRomPath:  disk.cdrom,
	})
	if err != nil {
		return libvirt.Domain{}, fmt.Errorf("failed to generate domain XML: %w", err)
	}

	logger.Info("defining domain")
	dom, err := e.lv.DomainDefineXML(domainXML)
	if err != nil {
		return libvirt.Domain{}, fmt.Errorf("failed to define domain: %w", err)
	}

	record := &metadata.Record{
		Project:   e.cfg.Project,
		Image:     spec.Image,
		OS:        spec.OS,
		Installer: string(spec.Installer.Kind),
		Volume:    name,
		Pool:      e.cfg.Pool,
	}
	if err := metadata.Store(e.lv, dom, record); err != nil {
		logger.Warn("failed to store machine metadata", "err", err)
	}
	return dom, nil
}

// provision boots a freshly defined domain, runs its actions, and shuts
// it down again.
func (e *Engine) provision(ctx context.Context, logger *slog.Logger, dom libvirt.Domain, name string, list config.Actions) error {
	logger.Info("starting domain for first boot", "actions", len(list))
	if err := e.lv.DomainCreate(dom); err != nil {
		return fmt.Errorf("failed to start domain: %w", err)
	}

	target := &machineTarget{engine: e, name: name, dom: dom}
	if err := e.executor.Execute(ctx, target, list, e.cfg.Substitutions); err != nil {
		return fmt.Errorf("failed to provision: %w", err)
	}

	return e.stopDomain(ctx, logger, dom, e.cfg.ProvisionStopTimeout)
}

// rollback removes what a failed create made. It ignores the caller's
// context.
func (e *Engine) rollback(name string, dom libvirt.Domain, domainDefined, removeVolume bool) error {
	logger := e.logger.With("machine", name)
	logger.Warn("cleaning up after failed create")

	var errs []error
	if domainDefined {
		if state, _, err := e.lv.DomainGetState(dom, 0); err != nil {
			errs = append(errs, fmt.Errorf("failed to get domain state during cleanup: %w", err))
		} else if status.Active(state) {
			if err := e.lv.DomainDestroy(dom); err != nil {
				errs = append(errs, fmt.Errorf("failed to destroy domain during cleanup: %w", err))
			}
		}
		if err := e.lv.DomainUndefineFlags(dom, libvirt.DomainUndefineNvram); err != nil {
			errs = append(errs, fmt.Errorf("failed to undefine domain during cleanup: %w", err))
		}
	}
	if removeVolume {
		if err := e.storage.DeleteVolume(context.Background(), e.cfg.Pool, name); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete volume during cleanup: %w", err))
		}
	}

	if len(errs) == 0 {
		logger.Info("cleanup complete")
	}
	return errors.Join(errs...)
}
