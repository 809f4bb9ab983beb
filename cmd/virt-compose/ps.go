package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/virtcompose/internal/output"
	"github.com/jbweber/virtcompose/internal/status"
)

var (
	outputFormat string
	noHeaders    bool
	psAll        bool
)

var psCmd = &cobra.Command{
	Use:   "ps [machine...]",
	Short: "List machines",
	Long: `List the manifest's machines that are defined in libvirt.

With --all, machines that are not created yet are listed too, along with
domains this project created that are no longer in the manifest.

Output formats:
  -o table  Human-readable table (default)
  -o yaml   YAML stream, one document per machine
  -o json   JSON array`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		machines, err := s.engine.Status(cmd.Context(), args)
		if err != nil {
			return err
		}
		if psAll {
			orphans, err := s.engine.Orphans(cmd.Context())
			if err != nil {
				return err
			}
			machines = append(machines, orphans...)
		} else {
			machines = defined(machines)
		}

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}
		result, err := formatter.FormatMachines(machines)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		fmt.Print(result)
		return nil
	},
}

var ipCmd = &cobra.Command{
	Use:   "ip <machine>",
	Short: "Print a running machine's IP address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		addr, err := s.engine.Address(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(addr)
		return nil
	},
}

func defined(machines []status.MachineStatus) []status.MachineStatus {
	out := machines[:0]
	for _, m := range machines {
		if m.State.Defined() {
			out = append(out, m)
		}
	}
	return out
}

func init() {
	psCmd.Flags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, yaml, json)")
	psCmd.Flags().BoolVar(&noHeaders, "no-headers", false, "Omit table headers")
	psCmd.Flags().BoolVarP(&psAll, "all", "a", false, "Include machines not created yet and orphaned domains")
}
