// Package ssh runs commands on and copies files to guests over SSH, using
// the keys held by the user's SSH agent.
package ssh

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/jbweber/virtcompose/internal/logging"
)

const (
	// DefaultPort is the guest SSH port.
	DefaultPort = "22"
	// DefaultTimeout bounds the TCP connect and SSH handshake.
	DefaultTimeout = 10 * time.Second
)

// Client runs non-interactive SSH sessions. Host keys are not verified:
// guests are freshly installed and their keys are never known in advance.
type Client struct {
	Auth    ssh.AuthMethod
	Port    string
	Timeout time.Duration
	Stdout  io.Writer // Remote stdout, discarded when nil
	Stderr  io.Writer // Remote stderr, discarded when nil
	Logger  *slog.Logger
}

// NewClient creates a client that authenticates with auth and streams
// remote output to the process's stdout and stderr.
func NewClient(auth ssh.AuthMethod, logger *slog.Logger) *Client {
	return &Client{
		Auth:    auth,
		Port:    DefaultPort,
		Timeout: DefaultTimeout,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Logger:  logging.Ensure(logger),
	}
}

func (c *Client) dial(ctx context.Context, user, host string) (*ssh.Client, error) {
	if c.Auth == nil {
		return nil, fmt.Errorf("no SSH authentication method configured")
	}
	port := c.Port
	if port == "" {
		port = DefaultPort
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{c.Auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(host, port)
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("SSH handshake with %s failed: %w", addr, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// Run executes command on host as user and waits for it to exit.
// A nonzero exit status is returned as an error.
func (c *Client) Run(ctx context.Context, user, host, command string) error {
	c.logger().Debug("ssh run", "user", user, "host", host, "command", command)

	return c.session(ctx, user, host, func(session *ssh.Session) error {
		session.Stdout = c.Stdout
		session.Stderr = c.Stderr
		if err := session.Start(command); err != nil {
			return fmt.Errorf("failed to start remote command: %w", err)
		}
		if err := session.Wait(); err != nil {
			return fmt.Errorf("remote command %q failed: %w", command, err)
		}
		return nil
	})
}

// Copy uploads the local file or directory src to dst on host using the
// scp sink protocol.
func (c *Client) Copy(ctx context.Context, user, host, src, dst string) error {
	c.logger().Debug("ssh copy", "user", user, "host", host, "src", src, "dst", dst)

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}
	flags := "-t"
	if info.IsDir() {
		flags = "-rt"
	}

	return c.session(ctx, user, host, func(session *ssh.Session) error {
		stdin, err := session.StdinPipe()
		if err != nil {
			return fmt.Errorf("failed to open scp stdin: %w", err)
		}
		stdout, err := session.StdoutPipe()
		if err != nil {
			return fmt.Errorf("failed to open scp stdout: %w", err)
		}
		session.Stderr = c.Stderr

		if err := session.Start(fmt.Sprintf("scp %s %s", flags, shellQuote(dst))); err != nil {
			return fmt.Errorf("failed to start remote scp: %w", err)
		}

		sendErr := scpSend(stdin, stdout, filepath.Clean(src))
		_ = stdin.Close()
		waitErr := session.Wait()
		if sendErr != nil {
			return fmt.Errorf("failed to copy %s to %s:%s: %w", src, host, dst, sendErr)
		}
		if waitErr != nil {
			return fmt.Errorf("remote scp failed: %w", waitErr)
		}
		return nil
	})
}

// session dials, opens one session, runs fn, and tears everything down.
// Cancelling ctx closes the connection, which unblocks fn.
func (c *Client) session(ctx context.Context, user, host string, fn func(*ssh.Session) error) error {
	client, err := c.dial(ctx, user, host)
	if err != nil {
		return err
	}
	defer runFuncAndLogErr(c.logger(), client.Close)

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("unable to create SSH session: %w", err)
	}
	defer runFuncAndLogErr(c.logger(), session.Close)

	done := make(chan error, 1)
	go func() { done <- fn(session) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = client.Close()
		<-done
		return ctx.Err()
	}
}

func (c *Client) logger() *slog.Logger {
	return logging.Ensure(c.Logger)
}

func runFuncAndLogErr(logger *slog.Logger, f func() error) {
	if err := f(); err != nil && err != io.EOF {
		logger.Debug("error closing ssh session or connection", "err", err.Error())
	}
}
