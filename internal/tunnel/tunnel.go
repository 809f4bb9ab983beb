// Package tunnel joins two subprocesses into a bidirectional byte pipe.
//
// Build wires the standard streams of two commands crosswise through two OS
// pipes: whatever A writes to stdout, B reads on stdin, and the reverse. The
// parent keeps none of the four pipe ends once both children are running, so
// either child exiting delivers EOF to the other.
package tunnel

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Process is a started child owned by a tunnel.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func start(cmd *exec.Cmd) (*Process, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &Process{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// String returns the command line of the process.
func (p *Process) String() string {
	return p.cmd.String()
}

// Exited reports whether the process has already exited.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Terminate sends SIGTERM. Signalling an exited process is not an error.
func (p *Process) Terminate() error {
	if p.Exited() {
		return nil
	}
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to terminate pid %d: %w", p.Pid(), err)
	}
	return nil
}

// Wait blocks until the process exits and returns its exit error.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Stop terminates the process and waits for it. If it is still alive after
// grace it is killed.
func (p *Process) Stop(grace time.Duration) error {
	if err := p.Terminate(); err != nil {
		return err
	}
	select {
	case <-p.done:
	case <-time.After(grace):
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("failed to kill pid %d: %w", p.Pid(), err)
		}
		<-p.done
	}
	return nil
}

// Build starts a and b joined by two pipes: a's stdout feeds b's stdin and
// b's stdout feeds a's stdin. Stdin and Stdout of both commands are
// overwritten; Stderr and everything else is left to the caller.
//
// On success all four pipe ends have been closed in the calling process. If
// either command fails to start, every pipe end is closed and a started a is
// terminated and reaped before the start error is returned.
func Build(a, b *exec.Cmd) (*Process, *Process, error) {
	abR, abW, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	baR, baW, err := os.Pipe()
	if err != nil {
		closeAll(abR, abW)
		return nil, nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	defer closeAll(abR, abW, baR, baW)

	a.Stdin, a.Stdout = baR, abW
	b.Stdin, b.Stdout = abR, baW

	pa, err := start(a)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start %s: %w", a.Path, err)
	}

	pb, err := start(b)
	if err != nil {
		closeAll(abR, abW, baR, baW)
		_ = pa.Stop(time.Second)
		return nil, nil, fmt.Errorf("failed to start %s: %w", b.Path, err)
	}

	return pa, pb, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		// Closing twice returns os.ErrClosed, which is fine here.
		_ = f.Close()
	}
}
