package vm

import (
	"context"
	"errors"
	"fmt"

	"github.com/jbweber/virtcompose/internal/config"
	"github.com/jbweber/virtcompose/internal/status"
)

// Run starts a created machine, runs an ad-hoc action list against it,
// and stops it afterwards whatever the outcome.
func (e *Engine) Run(ctx context.Context, name string, list config.Actions) (runErr error) {
	if _, err := e.machines([]string{name}); err != nil {
		return err
	}
	if err := e.executor.Check(list, e.cfg.Substitutions); err != nil {
		return fmt.Errorf("invalid actions: %w", err)
	}

	if err := e.startMachine(name); err != nil {
		return err
	}
	defer func() {
		// Stop even when ctx is what ended the run.
		if err := e.stopMachine(context.WithoutCancel(ctx), name, e.cfg.StopTimeout); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}()

	dom, _, _, err := e.lookup(name)
	if err != nil {
		return err
	}
	target := &machineTarget{engine: e, name: name, dom: dom}
	if err := e.executor.Execute(ctx, target, list, e.cfg.Substitutions); err != nil {
		return interrupted(ctx, fmt.Errorf("failed to run actions on %s: %w", name, err))
	}
	return nil
}

// Exec runs one command on a running machine over SSH.
func (e *Engine) Exec(ctx context.Context, name, user, command string) error {
	if _, err := e.machines([]string{name}); err != nil {
		return err
	}
	dom, state, _, err := e.lookup(name)
	if err != nil {
		return err
	}
	if state != status.StateRunning {
		return fmt.Errorf("machine %s is not running", name)
	}
	if user == "" {
		user = config.DefaultActionUser
	}

	target := &machineTarget{engine: e, name: name, dom: dom}
	list := config.Actions{config.Ssh{User: user, Command: command}}
	return interrupted(ctx, e.executor.Execute(ctx, target, list, e.cfg.Substitutions))
}
