package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultActionUser is used by scp, ssh, and sshfs actions that omit user.
const DefaultActionUser = "root"

// Action is one first-boot automation step. The set of implementations is
// closed: Sleep, Type, Scp, Ssh, and Sshfs.
type Action interface {
	// Kind returns the manifest tag of the action.
	Kind() string
	validate() error
}

// Sleep pauses the run.
type Sleep struct {
	Duration time.Duration
}

// Type types text on the machine's console followed by ENTER. Text may
// reference variables as $NAME or ${NAME}; $$ is a literal dollar sign.
type Type struct {
	Text string
}

// Scp copies a local file to the machine.
type Scp struct {
	User string `yaml:"user"`
	Src  string `yaml:"src"`
	Dst  string `yaml:"dst"`
}

// Ssh runs a command on the machine.
type Ssh struct {
	User    string `yaml:"user"`
	Command string `yaml:"command"`
}

// Sshfs mounts a local directory on the machine for the rest of the run.
// Src is the local directory served, Dst the mount point on the machine.
type Sshfs struct {
	User string `yaml:"user"`
	Src  string `yaml:"src"`
	Dst  string `yaml:"dst"`
}

func (Sleep) Kind() string { return "sleep" }
func (Type) Kind() string  { return "type" }
func (Scp) Kind() string   { return "scp" }
func (Ssh) Kind() string   { return "ssh" }
func (Sshfs) Kind() string { return "sshfs" }

func (a Sleep) validate() error {
	if a.Duration < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	return nil
}

func (a Type) validate() error { return nil }

func (a Scp) validate() error {
	if a.Src == "" || a.Dst == "" {
		return fmt.Errorf("src and dst are required")
	}
	return nil
}

func (a Ssh) validate() error {
	if strings.TrimSpace(a.Command) == "" {
		return fmt.Errorf("command is required")
	}
	return nil
}

func (a Sshfs) validate() error {
	if a.Src == "" || a.Dst == "" {
		return fmt.Errorf("src and dst are required")
	}
	return nil
}

// Actions is an ordered action list.
type Actions []Action

// UnmarshalYAML decodes a sequence of single-key mappings.
func (as *Actions) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: actions must be a list", node.Line)
	}
	out := make(Actions, 0, len(node.Content))
	for i, item := range node.Content {
		action, err := decodeAction(item)
		if err != nil {
			return fmt.Errorf("actions[%d]: %w", i, err)
		}
		out = append(out, action)
	}
	*as = out
	return nil
}

// MarshalYAML encodes the list back into its manifest form.
func (as Actions) MarshalYAML() (interface{}, error) {
	out := make([]map[string]interface{}, 0, len(as))
	for _, a := range as {
		var value interface{}
		switch a := a.(type) {
		case Sleep:
			value = a.Duration.Seconds()
		case Type:
			value = a.Text
		default:
			value = a
		}
		out = append(out, map[string]interface{}{a.Kind(): value})
	}
	return out, nil
}

func decodeAction(node *yaml.Node) (Action, error) {
	key, value, err := singleKey(node)
	if err != nil {
		return nil, err
	}

	switch key {
	case "sleep":
		d, err := parseSeconds(value.Value)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid sleep %q: %w", value.Line, value.Value, err)
		}
		return Sleep{Duration: d}, nil
	case "type":
		if value.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: type takes a string", value.Line)
		}
		return Type{Text: value.Value}, nil
	case "scp":
		var a Scp
		if err := value.Decode(&a); err != nil {
			return nil, fmt.Errorf("line %d: %w", value.Line, err)
		}
		return a, nil
	case "ssh":
		var a Ssh
		if err := value.Decode(&a); err != nil {
			return nil, fmt.Errorf("line %d: %w", value.Line, err)
		}
		return a, nil
	case "sshfs":
		var a Sshfs
		if err := value.Decode(&a); err != nil {
			return nil, fmt.Errorf("line %d: %w", value.Line, err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("line %d: unknown action %q", node.Line, key)
	}
}

// parseSeconds accepts a plain number of seconds or a Go duration string.
func parseSeconds(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// Validate checks every action in the list.
func (as Actions) Validate() error {
	for i, a := range as {
		if a == nil {
			return fmt.Errorf("actions[%d]: empty action", i)
		}
		if err := a.validate(); err != nil {
			return fmt.Errorf("actions[%d] (%s): %w", i, a.Kind(), err)
		}
	}
	return nil
}

// HasSshfs reports whether any action needs a filesystem tunnel.
func (as Actions) HasSshfs() bool {
	for _, a := range as {
		if _, ok := a.(Sshfs); ok {
			return true
		}
	}
	return false
}

// Normalize fills in default users.
func (as Actions) Normalize() {
	for i, a := range as {
		switch a := a.(type) {
		case Scp:
			if a.User == "" {
				a.User = DefaultActionUser
			}
			as[i] = a
		case Ssh:
			if a.User == "" {
				a.User = DefaultActionUser
			}
			as[i] = a
		case Sshfs:
			if a.User == "" {
				a.User = DefaultActionUser
			}
			as[i] = a
		}
	}
}
