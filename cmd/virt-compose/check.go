package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/jbweber/virtcompose/internal/actions"
	"github.com/jbweber/virtcompose/internal/libvirt"
	"github.com/jbweber/virtcompose/internal/loader"
	vcssh "github.com/jbweber/virtcompose/internal/ssh"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the manifest and the host tooling",
	Long: `Validate the manifest, test connectivity to the libvirt daemon, and report
whether packer, the SSH agent, and the sftp-server binary used by sshfs
actions are available.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := loader.LoadFromFile(manifestPath)
		if err != nil {
			return fmt.Errorf("failed to load manifest: %w", err)
		}
		fmt.Println(SuccessMsg("Manifest %s: %d machines, %d images", manifestPath, len(m.Machines), len(m.Images)))

		client, err := libvirt.Connect(cmd.Context(), socketPath, libvirt.DefaultTimeout)
		if err != nil {
			return fmt.Errorf("failed to connect to libvirt: %w", err)
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", closeErr)
			}
		}()
		if err := client.Ping(); err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}

		version, err := client.Libvirt().ConnectGetLibVersion()
		if err != nil {
			return fmt.Errorf("failed to get libvirt version: %w", err)
		}
		// 8006000 is 8.6.0
		major := version / 1000000
		minor := (version % 1000000) / 1000
		patch := version % 1000
		uri, err := client.Libvirt().ConnectGetUri()
		if err != nil {
			return fmt.Errorf("failed to get connection URI: %w", err)
		}
		fmt.Println(SuccessMsg("Libvirt %d.%d.%d at %s", major, minor, patch, uri))

		if path, err := exec.LookPath("packer"); err != nil {
			fmt.Println(WarnMsg("packer not found in PATH, images cannot be built"))
		} else {
			fmt.Println(SuccessMsg("Packer: %s", path))
		}

		if a, err := vcssh.ConnectAgent(); err != nil {
			fmt.Println(WarnMsg("SSH agent unavailable, ssh actions will fail: %v", err))
		} else {
			keys, err := a.List()
			_ = a.Close()
			switch {
			case err != nil:
				fmt.Println(WarnMsg("failed to list agent keys: %v", err))
			case len(keys) == 0:
				fmt.Println(WarnMsg("SSH agent holds no keys"))
			default:
				fmt.Println(SuccessMsg("SSH agent: %d keys", len(keys)))
			}
		}

		if server := os.Getenv(actions.SFTPServerEnv); server == "" {
			fmt.Println(WarnMsg("%s is not set, sshfs actions will fail", actions.SFTPServerEnv))
		} else {
			fmt.Println(SuccessMsg("sftp-server: %s", server))
		}

		fmt.Println(Muted("\nCheck complete"))
		return nil
	},
}
