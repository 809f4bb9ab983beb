package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jbweber/virtcompose/internal/image"
	"github.com/jbweber/virtcompose/internal/vm"
)

var (
	buildForce    bool
	buildOnly     string
	createBuild   bool
	forceRecreate bool
	stopTimeout   time.Duration
	downRemove    bool
)

var buildCmd = &cobra.Command{
	Use:   "build [image...]",
	Short: "Build images with packer",
	Long: `Build the named images, or every image in the manifest.

An image is rebuilt when its output is missing or older than its packerfile,
or always with --force. HCL packerfiles (.pkr.hcl) are used as is; YAML packerfiles are
converted to JSON first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openBuildSession()
		if err != nil {
			return err
		}
		if err := s.engine.Build(cmd.Context(), args, image.Options{Force: buildForce, Only: buildOnly}); err != nil {
			return err
		}
		fmt.Println(SuccessMsg("Images up to date"))
		return nil
	},
}

var createCmd = &cobra.Command{
	Use:   "create [machine...]",
	Short: "Create and provision machines",
	Long: `Create the named machines, or every machine in the manifest.

Each machine's image is built if needed, its disk volume is prepared, and the
machine is defined, booted once to run its actions, and shut down. Machines
that already exist are left alone unless their image was rebuilt or
--force-recreate is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.engine.Create(cmd.Context(), args, createOptions()); err != nil {
			return err
		}
		fmt.Println(SuccessMsg("Machines created"))
		return nil
	},
}

var upCmd = &cobra.Command{
	Use:   "up [machine...]",
	Short: "Create and start machines",
	Long: `Ensure the manifest's networks exist, create the named machines, and
start them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.engine.Up(cmd.Context(), args, createOptions()); err != nil {
			return err
		}
		fmt.Println(SuccessMsg("Machines up"))
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start [machine...]",
	Short: "Start machines",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.engine.Start(cmd.Context(), args); err != nil {
			return err
		}
		fmt.Println(SuccessMsg("Machines started"))
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop [machine...]",
	Short: "Stop machines",
	Long: `Ask the named machines to shut down and wait up to --timeout for each.
Machines still running after the timeout are forced off.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.engine.Stop(cmd.Context(), args, stopTimeout); err != nil {
			return err
		}
		fmt.Println(SuccessMsg("Machines stopped"))
		return nil
	},
}

var downCmd = &cobra.Command{
	Use:   "down [machine...]",
	Short: "Stop and remove machines",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		opts := vm.DownOptions{Timeout: stopTimeout, Remove: downRemove}
		if err := s.engine.Down(cmd.Context(), args, opts); err != nil {
			return err
		}
		if downRemove {
			fmt.Println(SuccessMsg("Machines removed"))
		} else {
			fmt.Println(SuccessMsg("Machines stopped"))
		}
		return nil
	},
}

var rmCmd = &cobra.Command{
	Use:     "rm [machine...]",
	Aliases: []string{"remove"},
	Short:   "Remove machines and their disks",
	Long: `Undefine the named machines and delete their disk volumes. Running
machines are forced off first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.engine.Remove(cmd.Context(), args); err != nil {
			return err
		}
		fmt.Println(SuccessMsg("Machines removed"))
		return nil
	},
}

func createOptions() vm.CreateOptions {
	return vm.CreateOptions{Build: createBuild, ForceRecreate: forceRecreate}
}

func init() {
	buildCmd.Flags().BoolVar(&buildForce, "force", false, "Rebuild even when the output is up to date")
	buildCmd.Flags().StringVar(&buildOnly, "only", "", "Only build the given packer sources")

	for _, cmd := range []*cobra.Command{createCmd, upCmd} {
		cmd.Flags().BoolVar(&createBuild, "build", false, "Rebuild images before creating machines")
		cmd.Flags().BoolVar(&forceRecreate, "force-recreate", false, "Recreate machines that already exist")
	}

	for _, cmd := range []*cobra.Command{stopCmd, downCmd} {
		cmd.Flags().DurationVarP(&stopTimeout, "timeout", "t", vm.DefaultStopTimeout, "Time to wait for a graceful shutdown")
	}
	downCmd.Flags().BoolVar(&downRemove, "rm", true, "Remove the machines after stopping them")
}
