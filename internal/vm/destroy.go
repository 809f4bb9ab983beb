package vm

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/virtcompose/internal/status"
)

// DownOptions controls Down.
type DownOptions struct {
	Timeout time.Duration // Graceful stop timeout, zero means the engine default
	Remove  bool          // Undefine the machines and delete their volumes
}

// Down stops the named machines and, with Remove, removes them.
func (e *Engine) Down(ctx context.Context, names []string, opts DownOptions) error {
	names, err := e.machines(names)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := e.stopMachine(ctx, name, opts.Timeout); err != nil {
			return interrupted(ctx, err)
		}
		if !opts.Remove {
			continue
		}
		if err := e.removeMachine(ctx, name); err != nil {
			return interrupted(ctx, err)
		}
	}
	return nil
}

// Remove destroys the named machines if running, undefines them, and
// deletes their volumes.
func (e *Engine) Remove(ctx context.Context, names []string) error {
	names, err := e.machines(names)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := e.removeMachine(ctx, name); err != nil {
			return interrupted(ctx, err)
		}
	}
	return nil
}

func (e *Engine) removeMachine(ctx context.Context, name string) error {
	logger := e.logger.With("machine", name)

	dom, state, raw, err := e.lookup(name)
	if err != nil {
		return err
	}
	if _, act, _ := status.Transition(state, status.OpRemove); act {
		if status.Active(raw) {
			logger.Info("destroying domain")
			if err := e.lv.DomainDestroy(dom); err != nil {
				return fmt.Errorf("failed to destroy %s: %w", name, err)
			}
		}
		logger.Info("undefining domain")
		if err := e.lv.DomainUndefineFlags(dom, libvirt.DomainUndefineNvram); err != nil {
			return fmt.Errorf("failed to undefine %s: %w", name, err)
		}
	}

	exists, err := e.storage.VolumeExists(ctx, e.cfg.Pool, name)
	if err != nil {
		return fmt.Errorf("failed to check volume %s: %w", name, err)
	}
	if exists {
		logger.Info("deleting volume", "pool", e.cfg.Pool)
		if err := e.storage.DeleteVolume(ctx, e.cfg.Pool, name); err != nil {
			return fmt.Errorf("failed to delete volume %s: %w", name, err)
		}
	}
	return nil
}
