package main

import (
	"testing"

	"github.com/jbweber/virtcompose/internal/status"
)

func TestDefined(t *testing.T) {
	machines := []status.MachineStatus{
		{Name: "a", State: status.StateRunning},
		{Name: "b", State: status.StateAbsent},
		{Name: "c", State: status.StateStopped},
	}

	got := defined(machines)
	if len(got) != 2 {
		t.Fatalf("expected 2 machines, got %d", len(got))
	}
	if got[0].Name != "a" || got[1].Name != "c" {
		t.Errorf("got %s, %s, want a, c", got[0].Name, got[1].Name)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"build", "create", "up", "start", "stop", "down", "rm", "ps", "ip", "run", "exec", "check"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd == rootCmd {
			t.Errorf("command %q not registered", name)
		}
	}

	flag := downCmd.Flags().Lookup("rm")
	if flag == nil || flag.DefValue != "true" {
		t.Errorf("down --rm should default to true")
	}
}
