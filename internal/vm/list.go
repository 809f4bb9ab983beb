package vm

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/virtcompose/internal/metadata"
	"github.com/jbweber/virtcompose/internal/status"
)

// Status reports the state of the named machines, or every declared
// machine when names is empty. Absent machines are included.
func (e *Engine) Status(ctx context.Context, names []string) ([]status.MachineStatus, error) {
	names, err := e.machines(names)
	if err != nil {
		return nil, err
	}

	machines := make([]status.MachineStatus, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		spec := e.manifest.Machines[name]
		ms := status.MachineStatus{
			Name:      name,
			Image:     spec.Image,
			OS:        spec.OS,
			Installer: string(spec.Installer.Kind),
			VCPUs:     spec.VCPUs,
			MemoryMiB: spec.Memory,
		}

		dom, state, raw, err := e.lookup(name)
		if err != nil {
			return nil, err
		}
		ms.State = state
		if state.Defined() {
			e.describe(&ms, dom, raw)
		}
		machines = append(machines, ms)
	}
	return machines, nil
}

// Orphans reports domains created from this project's manifest that it
// no longer declares.
func (e *Engine) Orphans(ctx context.Context) ([]status.MachineStatus, error) {
	// NeedResults: 1 means populate the domains slice
	// Flags: 0 means all domains (active and inactive)
	domains, _, err := e.lv.ConnectListAllDomains(1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	var orphans []status.MachineStatus
	for _, dom := range domains {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, declared := e.manifest.Machines[dom.Name]; declared {
			continue
		}
		record, err := metadata.Load(e.lv, dom)
		if err != nil || record.Project != e.cfg.Project {
			continue
		}
		raw, _, err := e.lv.DomainGetState(dom, 0)
		if err != nil {
			e.logger.Warn("failed to get domain state", "machine", dom.Name, "err", err)
			continue
		}
		ms := status.MachineStatus{
			Name:  dom.Name,
			State: status.FromLibvirt(raw),
		}
		e.describe(&ms, dom, raw)
		orphans = append(orphans, ms)
	}
	return orphans, nil
}

// describe fills in what libvirt knows about a defined machine: its
// detailed state, the recorded metadata, and the address if running.
func (e *Engine) describe(ms *status.MachineStatus, dom libvirt.Domain, raw int32) {
	ms.Detail = status.Describe(raw)

	if record, err := metadata.Load(e.lv, dom); err == nil {
		ms.Image = record.Image
		ms.OS = record.OS
		ms.Installer = record.Installer
	} else {
		e.logger.Debug("no machine metadata", "machine", ms.Name, "err", err)
	}

	if ms.State == status.StateRunning {
		if addr, err := e.address(ms.Name, dom); err == nil {
			ms.Address = addr
		} else {
			e.logger.Debug("no address", "machine", ms.Name, "err", err)
		}
	}
}
