// Package actions runs a machine's first-boot automation: typed console
// input, file copies, remote commands, and filesystem tunnels.
package actions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/jbweber/virtcompose/internal/config"
	"github.com/jbweber/virtcompose/internal/keys"
	"github.com/jbweber/virtcompose/internal/logging"
	"github.com/jbweber/virtcompose/internal/tunnel"
)

const (
	// SFTPServerEnv names the environment variable holding the local
	// sftp-server binary used by sshfs actions.
	SFTPServerEnv = "SFTP_SERVER"

	// DefaultSettleDelay is how long an sshfs tunnel gets to fail before
	// the run continues.
	DefaultSettleDelay = time.Second

	// DefaultStopGrace is how long tunnel processes get to exit after
	// SIGTERM before they are killed.
	DefaultStopGrace = 5 * time.Second
)

// ErrSFTPServerUnset is returned when sshfs actions are present but no
// sftp-server binary is configured.
var ErrSFTPServerUnset = errors.New(SFTPServerEnv + " is not set, sshfs actions need a local sftp-server binary")

// Target is the machine actions run against.
type Target interface {
	Name() string
	// SendKeys delivers one key event: all keys are pressed together.
	SendKeys(ctx context.Context, keys []keys.Key) error
	// Address returns the machine's current IP address.
	Address(ctx context.Context) (string, error)
}

// Transport executes commands on and copies files to a remote host.
type Transport interface {
	Run(ctx context.Context, user, host, command string) error
	Copy(ctx context.Context, user, host, src, dst string) error
}

// Process is a child process owned by a run.
type Process interface {
	String() string
	Done() <-chan struct{} // Closed once the process has exited
	Stop(grace time.Duration) error
}

// TunnelFunc starts a and b with their standard streams joined.
type TunnelFunc func(a, b *exec.Cmd) (Process, Process, error)

// Executor runs action lists. It holds no per-run state and may be reused.
type Executor struct {
	Transport   Transport
	Tunnel      TunnelFunc
	SFTPServer  string // Local sftp-server binary
	SSHCommand  string // ssh binary for the remote side of tunnels
	SettleDelay time.Duration
	StopGrace   time.Duration
	Stderr      io.Writer // Stderr of tunnel processes
	Logger      *slog.Logger
}

// NewExecutor creates an executor using transport for scp and ssh actions,
// real subprocess tunnels, and the sftp-server named by $SFTP_SERVER.
func NewExecutor(transport Transport, logger *slog.Logger) *Executor {
	return &Executor{
		Transport:   transport,
		Tunnel:      buildTunnel,
		SFTPServer:  os.Getenv(SFTPServerEnv),
		SSHCommand:  "ssh",
		SettleDelay: DefaultSettleDelay,
		StopGrace:   DefaultStopGrace,
		Stderr:      os.Stderr,
		Logger:      logging.Ensure(logger),
	}
}

func buildTunnel(a, b *exec.Cmd) (Process, Process, error) {
	pa, pb, err := tunnel.Build(a, b)
	if err != nil {
		return nil, nil, err
	}
	return pa, pb, nil
}

// Execute runs actions against target in order. Every action is checked
// before the first one runs: templates must expand, typed text must be
// encodable, and sshfs needs an sftp-server. The first failing action
// stops the run. Tunnel processes started by the run are stopped before
// Execute returns, whatever the outcome.
func (e *Executor) Execute(ctx context.Context, target Target, actions config.Actions, substitutions map[string]string) error {
	plan, err := e.prepare(actions, substitutions)
	if err != nil {
		return err
	}

	r := &run{executor: e, target: target, logger: e.logger().With("machine", target.Name())}
	defer r.teardown()

	for i, action := range plan {
		r.logger.Info("running action", "step", i+1, "of", len(plan), "action", action.Kind())
		if err := r.do(ctx, action); err != nil {
			return fmt.Errorf("action %d (%s) failed: %w", i+1, action.Kind(), err)
		}
	}
	return nil
}

// Check reports whether actions would pass Execute's pre-flight checks
// without touching any machine.
func (e *Executor) Check(actions config.Actions, substitutions map[string]string) error {
	_, err := e.prepare(actions, substitutions)
	return err
}

// prepare validates the list and returns it with Type templates expanded.
func (e *Executor) prepare(actions config.Actions, substitutions map[string]string) (config.Actions, error) {
	plan := make(config.Actions, len(actions))
	var typed string
	for i, action := range actions {
		if t, ok := action.(config.Type); ok {
			text, err := Expand(t.Text, substitutions)
			if err != nil {
				return nil, fmt.Errorf("action %d (type): %w", i+1, err)
			}
			t.Text = text
			typed += text
			action = t
		}
		plan[i] = action
	}

	if chars := keys.Unsupported(typed); len(chars) > 0 {
		return nil, &UnsupportedCharactersError{Chars: chars}
	}
	if plan.HasSshfs() && e.SFTPServer == "" {
		return nil, ErrSFTPServerUnset
	}
	return plan, nil
}

func (e *Executor) logger() *slog.Logger {
	return logging.Ensure(e.Logger)
}

// run is the state of one Execute call.
type run struct {
	executor  *Executor
	target    Target
	logger    *slog.Logger
	address   string
	processes []Process
}

func (r *run) do(ctx context.Context, action config.Action) error {
	switch a := action.(type) {
	case config.Sleep:
		return sleep(ctx, a.Duration)
	case config.Type:
		return r.typeText(ctx, a.Text)
	case config.Scp:
		addr, err := r.resolve(ctx)
		if err != nil {
			return err
		}
		return r.executor.Transport.Copy(ctx, a.User, addr, a.Src, a.Dst)
	case config.Ssh:
		addr, err := r.resolve(ctx)
		if err != nil {
			return err
		}
		return r.executor.Transport.Run(ctx, a.User, addr, a.Command)
	case config.Sshfs:
		return r.mount(ctx, a)
	default:
		return fmt.Errorf("unsupported action %T", action)
	}
}

// typeText sends one key event per character, then ENTER.
func (r *run) typeText(ctx context.Context, text string) error {
	seqs, err := keys.EncodeString(text)
	if err != nil {
		return err
	}
	for i, seq := range seqs {
		if err := r.target.SendKeys(ctx, seq); err != nil {
			return fmt.Errorf("failed to send key %d of %q: %w", i+1, text, err)
		}
	}
	if err := r.target.SendKeys(ctx, []keys.Key{keys.KeyEnter}); err != nil {
		return fmt.Errorf("failed to send enter: %w", err)
	}
	return nil
}

// resolve looks the address up once per run.
func (r *run) resolve(ctx context.Context) (string, error) {
	if r.address != "" {
		return r.address, nil
	}
	addr, err := r.target.Address(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve address of %s: %w", r.target.Name(), err)
	}
	r.logger.Debug("resolved address", "address", addr)
	r.address = addr
	return addr, nil
}

// mount serves a.Src from a local sftp-server and mounts it at a.Dst on
// the machine with sshfs in slave mode, which speaks SFTP over its stdio.
func (r *run) mount(ctx context.Context, a config.Sshfs) error {
	addr, err := r.resolve(ctx)
	if err != nil {
		return err
	}
	e := r.executor

	local := exec.Command(e.SFTPServer)
	remote := exec.Command(e.SSHCommand,
		"-oStrictHostKeyChecking=no",
		"-oUserKnownHostsFile=/dev/null",
		a.User+"@"+addr,
		"sshfs", ":"+a.Src, a.Dst, "-o", "slave",
	)
	local.Stderr = e.Stderr
	remote.Stderr = e.Stderr

	pl, pr, err := e.Tunnel(local, remote)
	if err != nil {
		return fmt.Errorf("failed to start sshfs tunnel: %w", err)
	}
	r.processes = append(r.processes, pl, pr)
	r.logger.Debug("sshfs tunnel started", "local", pl.String(), "remote", pr.String())

	return r.settle(ctx, a, pl, pr)
}

// settle waits SettleDelay for the tunnel to fail. Either end exiting
// before then means the mount did not come up.
func (r *run) settle(ctx context.Context, a config.Sshfs, local, remote Process) error {
	early := func() error {
		select {
		case <-remote.Done():
			return fmt.Errorf("sshfs mount of %s on %s exited early", a.Src, a.Dst)
		case <-local.Done():
			return fmt.Errorf("%s exited early", r.executor.SFTPServer)
		default:
			return nil
		}
	}

	timer := time.NewTimer(r.executor.SettleDelay)
	defer timer.Stop()
	select {
	case <-remote.Done():
	case <-local.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	return early()
}

// teardown stops every process the run started, in start order.
func (r *run) teardown() {
	grace := r.executor.StopGrace
	if grace == 0 {
		grace = DefaultStopGrace
	}
	for _, p := range r.processes {
		if err := p.Stop(grace); err != nil {
			r.logger.Debug("tunnel process exited", "process", p.String(), "err", err)
		}
	}
	r.processes = nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
