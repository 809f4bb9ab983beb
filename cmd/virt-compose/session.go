package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	gossh "golang.org/x/crypto/ssh"

	"github.com/jbweber/virtcompose/internal/actions"
	"github.com/jbweber/virtcompose/internal/image"
	"github.com/jbweber/virtcompose/internal/libvirt"
	"github.com/jbweber/virtcompose/internal/loader"
	"github.com/jbweber/virtcompose/internal/logging"
	vcssh "github.com/jbweber/virtcompose/internal/ssh"
	"github.com/jbweber/virtcompose/internal/storage"
	"github.com/jbweber/virtcompose/internal/vm"
)

// sshKeyVar is the template variable actions use for the caller's
// public keys.
const sshKeyVar = "SSH_KEY"

// session is everything one command needs: the engine and the
// connections behind it.
type session struct {
	engine *vm.Engine
	logger *slog.Logger
	client *libvirt.Client
	agent  *vcssh.Agent
}

func newLogger() (*slog.Logger, error) {
	format, err := logging.ParseFormat(logFormat)
	if err != nil {
		return nil, err
	}
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return logging.New(format, os.Stderr, level), nil
}

// openBuildSession loads the manifest for commands that only run packer.
func openBuildSession() (*session, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	m, err := loader.LoadFromFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	engine := vm.NewEngine(m, nil, nil, image.NewBuilder(logger), nil, vm.Config{Logger: logger})
	return &session{engine: engine, logger: logger}, nil
}

// openSession loads the manifest, connects to libvirt and the SSH agent,
// and wires up the engine.
func openSession(ctx context.Context) (*session, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}

	m, err := loader.LoadFromFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	project, err := filepath.Abs(filepath.Dir(manifestPath))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project directory: %w", err)
	}

	logger.Debug("connecting to libvirt", "socket", socketPath)
	client, err := libvirt.Connect(ctx, socketPath, libvirt.DefaultTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt: %w", err)
	}
	s := &session{client: client, logger: logger}

	// The agent is optional until an ssh action or $SSH_KEY needs it.
	var auth gossh.AuthMethod
	substitutions := make(map[string]string)
	if a, err := vcssh.ConnectAgent(); err != nil {
		logger.Debug("ssh agent unavailable", "err", err)
	} else {
		s.agent = a
		auth = a.Auth()
		if keys, err := vcssh.AuthorizedKeys(a); err != nil {
			logger.Warn("no public keys for $"+sshKeyVar, "err", err)
		} else {
			substitutions[sshKeyVar] = keys
		}
	}

	lv := client.Libvirt()
	executor := actions.NewExecutor(vcssh.NewClient(auth, logger), logger)
	s.engine = vm.NewEngine(m, lv, storage.NewManager(lv), image.NewBuilder(logger), executor, vm.Config{
		Project:       project,
		Pool:          poolName,
		Substitutions: substitutions,
		Logger:        logger,
	})
	return s, nil
}

// Close releases the session's connections.
func (s *session) Close() {
	if s.agent != nil {
		if err := s.agent.Close(); err != nil {
			s.logger.Warn("failed to close ssh agent connection", "err", err)
		}
	}
	if err := s.client.Close(); err != nil {
		s.logger.Warn("failed to close libvirt connection", "err", err)
	}
}
