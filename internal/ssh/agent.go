package ssh

import (
	"fmt"
	"net"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// AgentSocketEnv names the environment variable holding the agent socket.
const AgentSocketEnv = "SSH_AUTH_SOCK"

// Agent is a connection to the user's SSH agent.
type Agent struct {
	agent.ExtendedAgent
	conn net.Conn
}

// ConnectAgent connects to the agent at $SSH_AUTH_SOCK.
func ConnectAgent() (*Agent, error) {
	sock := os.Getenv(AgentSocketEnv)
	if sock == "" {
		return nil, fmt.Errorf("%s is not set, an SSH agent is required", AgentSocketEnv)
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SSH agent: %w", err)
	}
	return &Agent{ExtendedAgent: agent.NewClient(conn), conn: conn}, nil
}

// Auth returns an authentication method backed by the agent's keys.
func (a *Agent) Auth() ssh.AuthMethod {
	return ssh.PublicKeysCallback(a.Signers)
}

// Close closes the agent connection.
func (a *Agent) Close() error {
	return a.conn.Close()
}

// AuthorizedKeys renders the agent's public keys in authorized_keys form,
// one per line.
func AuthorizedKeys(a agent.Agent) (string, error) {
	keys, err := a.List()
	if err != nil {
		return "", fmt.Errorf("failed to list agent keys: %w", err)
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("SSH agent holds no keys")
	}

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		line := key.String()
		if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(line)); err != nil {
			return "", fmt.Errorf("agent key %q is not a valid authorized key: %w", key.Comment, err)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n"), nil
}
