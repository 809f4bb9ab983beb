package vm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/digitalocean/go-libvirt"

	"github.com/jbweber/virtcompose/internal/status"
)

// Start starts the named machines that are not running.
func (e *Engine) Start(ctx context.Context, names []string) error {
	names, err := e.machines(names)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := e.startMachine(name); err != nil {
			return interrupted(ctx, err)
		}
		if err := ctx.Err(); err != nil {
			return interrupted(ctx, err)
		}
	}
	return nil
}

func (e *Engine) startMachine(name string) error {
	dom, state, _, err := e.lookup(name)
	if err != nil {
		return err
	}
	_, act, err := status.Transition(state, status.OpStart)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if !act {
		e.logger.Debug("machine already running", "machine", name)
		return nil
	}

	e.logger.Info("starting machine", "machine", name)
	if err := e.lv.DomainCreate(dom); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	return nil
}

// Stop gracefully stops the named running machines. A machine still
// running after timeout is destroyed. A zero timeout means the engine's
// StopTimeout.
func (e *Engine) Stop(ctx context.Context, names []string, timeout time.Duration) error {
	names, err := e.machines(names)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := e.stopMachine(ctx, name, timeout); err != nil {
			return interrupted(ctx, err)
		}
	}
	return nil
}

func (e *Engine) stopMachine(ctx context.Context, name string, timeout time.Duration) error {
	dom, state, _, err := e.lookup(name)
	if err != nil {
		return err
	}
	if _, act, _ := status.Transition(state, status.OpStop); !act {
		e.logger.Debug("machine not running", "machine", name)
		return nil
	}
	if timeout <= 0 {
		timeout = e.cfg.StopTimeout
	}
	return e.stopDomain(ctx, e.logger.With("machine", name), dom, timeout)
}

// stopDomain sends an ACPI power button press and polls until the guest
// powers off. If it is still running when timeout expires it is destroyed.
func (e *Engine) stopDomain(ctx context.Context, logger *slog.Logger, dom libvirt.Domain, timeout time.Duration) error {
	logger.Info("shutting down", "timeout", timeout)
	if err := e.lv.DomainShutdownFlags(dom, libvirt.DomainShutdownAcpiPowerBtn); err != nil {
		logger.Warn("graceful shutdown failed", "err", err)
		return e.forceStop(logger, dom)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-shutdownCtx.Done():
			if err := ctx.Err(); err != nil {
				return err
			}
			logger.Warn("graceful shutdown timed out")
			return e.forceStop(logger, dom)
		case <-ticker.C:
			state, _, err := e.lv.DomainGetState(dom, 0)
			if err != nil {
				return fmt.Errorf("failed to check shutdown state: %w", err)
			}
			if status.FromLibvirt(state) != status.StateRunning {
				logger.Info("machine stopped")
				return nil
			}
		}
	}
}

// forceStop destroys the domain if it is still active.
func (e *Engine) forceStop(logger *slog.Logger, dom libvirt.Domain) error {
	state, _, err := e.lv.DomainGetState(dom, 0)
	if err != nil {
		return fmt.Errorf("failed to check state before destroy: %w", err)
	}
	if !status.Active(state) {
		return nil
	}
	logger.Info("force destroying machine")
	if err := e.lv.DomainDestroy(dom); err != nil {
		return fmt.Errorf("failed to destroy domain: %w", err)
	}
	return nil
}
