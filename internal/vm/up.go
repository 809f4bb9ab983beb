package vm

import (
	"context"
	"fmt"

	vclibvirt "github.com/jbweber/virtcompose/internal/libvirt"
)

// Up ensures networks, creates the named machines, and starts them.
func (e *Engine) Up(ctx context.Context, names []string, opts CreateOptions) error {
	if err := e.EnsureNetworks(ctx); err != nil {
		return interrupted(ctx, err)
	}
	if err := e.Create(ctx, names, opts); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return interrupted(ctx, err)
	}
	return e.Start(ctx, names)
}

// EnsureNetworks defines every network file of the manifest that libvirt
// does not know yet and starts the ones that are inactive.
func (e *Engine) EnsureNetworks(ctx context.Context) error {
	for _, path := range e.manifest.Networks {
		if err := ctx.Err(); err != nil {
			return err
		}
		def, err := vclibvirt.LoadNetworkDefinition(path)
		if err != nil {
			return err
		}
		if err := e.ensureNetwork(def); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) ensureNetwork(def *vclibvirt.NetworkDefinition) error {
	logger := e.logger.With("network", def.Name)

	network, err := e.lv.NetworkLookupByName(def.Name)
	if err != nil {
		if !vclibvirt.IsNotFound(err) {
			return fmt.Errorf("failed to look up network %s: %w", def.Name, err)
		}
		network, err = e.lv.NetworkDefineXML(def.XML)
		if err != nil {
			return fmt.Errorf("failed to define network %s: %w", def.Name, err)
		}
		logger.Info("defined libvirt network")
		if err := e.lv.NetworkSetAutostart(network, 1); err != nil {
			logger.Warn("unable to set network autostart", "err", err)
		}
	}

	active, err := e.lv.NetworkIsActive(network)
	if err != nil {
		return fmt.Errorf("failed to query network %s: %w", def.Name, err)
	}
	if active == 0 {
		if err := e.lv.NetworkCreate(network); err != nil {
			return fmt.Errorf("failed to start network %s: %w", def.Name, err)
		}
		logger.Info("started libvirt network")
	}
	return nil
}
