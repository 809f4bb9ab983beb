package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jbweber/virtcompose/internal/libvirt"
	"github.com/jbweber/virtcompose/internal/loader"
	"github.com/jbweber/virtcompose/internal/storage"
	"github.com/jbweber/virtcompose/internal/vm"
)

var (
	version = "dev"
	commit  = "unknown"
)

// Global flags
var (
	manifestPath string
	socketPath   string
	poolName     string
	verbose      bool
	logFormat    string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		if errors.Is(err, vm.ErrInterrupted) {
			fmt.Fprintln(os.Stderr, WarnMsg("%v", err))
			os.Exit(130)
		}
		fmt.Fprintln(os.Stderr, ErrorMsg("Error: %v", err))
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "virt-compose",
	Short: "virt-compose - declarative virtual machines on libvirt",
	Long: `virt-compose builds, provisions, and manages the virtual machines declared
in a YAML manifest, the way compose tools manage containers.

Images are built with packer. Machines are defined in libvirt, booted once to
run their first-boot actions, and then started and stopped on demand.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&manifestPath, "file", "f", loader.DefaultManifestPath, "Manifest file")
	flags.StringVar(&socketPath, "socket", libvirt.DefaultSocket, "libvirt daemon socket")
	flags.StringVar(&poolName, "pool", storage.DefaultPool, "Storage pool for machine disks")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(psCmd)
	rootCmd.AddCommand(ipCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(checkCmd)
}
