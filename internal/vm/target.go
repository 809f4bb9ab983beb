package vm

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/virtcompose/internal/keys"
	vclibvirt "github.com/jbweber/virtcompose/internal/libvirt"
)

// keyHoldTime is how long each key event is held down, in milliseconds.
const keyHoldTime = 10

// machineTarget is a running domain as seen by the action executor.
type machineTarget struct {
	engine *Engine
	name   string
	dom    libvirt.Domain
}

func (t *machineTarget) Name() string { return t.name }

func (t *machineTarget) SendKeys(ctx context.Context, seq []keys.Key) error {
	if err := t.engine.lv.DomainSendKey(t.dom, uint32(libvirt.KeycodeSetLinux), keyHoldTime, keys.Codes(seq), 0); err != nil {
		return err
	}
	timer := time.NewTimer(t.engine.cfg.KeyInterval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *machineTarget) Address(context.Context) (string, error) {
	return t.engine.address(t.name, t.dom)
}

// Address returns the IP address of a machine from its network's DHCP
// leases.
func (e *Engine) Address(ctx context.Context, name string) (string, error) {
	if _, err := e.machines([]string{name}); err != nil {
		return "", err
	}
	dom, state, _, err := e.lookup(name)
	if err != nil {
		return "", err
	}
	if !state.Defined() {
		return "", fmt.Errorf("machine %s is not created", name)
	}
	return e.address(name, dom)
}

// address finds the first interface's MAC and returns the most recent
// lease for it.
func (e *Engine) address(name string, dom libvirt.Domain) (string, error) {
	domainXML, err := e.lv.DomainGetXMLDesc(dom, 0)
	if err != nil {
		return "", fmt.Errorf("failed to get domain XML of %s: %w", name, err)
	}
	iface, err := vclibvirt.ParseInterface(domainXML)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	if iface.Network == "" {
		return "", fmt.Errorf("%s: interface %s is not attached to a libvirt network", name, iface.MAC)
	}

	network, err := e.lv.NetworkLookupByName(iface.Network)
	if err != nil {
		return "", fmt.Errorf("failed to look up network %s: %w", iface.Network, err)
	}
	leases, _, err := e.lv.NetworkGetDhcpLeases(network, libvirt.OptString{iface.MAC}, 1, 0)
	if err != nil {
		return "", fmt.Errorf("failed to get DHCP leases of network %s: %w", iface.Network, err)
	}
	if len(leases) == 0 {
		return "", fmt.Errorf("no DHCP lease for %s (%s) on network %s", name, iface.MAC, iface.Network)
	}
	return leases[len(leases)-1].Ipaddr, nil
}
