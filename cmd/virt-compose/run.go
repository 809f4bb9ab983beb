package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbweber/virtcompose/internal/loader"
)

var runCmd = &cobra.Command{
	Use:   "run <machine> <actions-file>",
	Short: "Run an actions file against a machine",
	Long: `Start the machine if needed, run the actions in the given YAML file, and
stop the machine again, even when an action fails.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := loader.LoadActionsFromFile(args[1])
		if err != nil {
			return err
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.engine.Run(cmd.Context(), args[0], list); err != nil {
			return err
		}
		fmt.Println(SuccessMsg("Ran %d actions on %s", len(list), args[0]))
		return nil
	},
}

var execCmd = &cobra.Command{
	Use:   "exec <machine> <user> <command...>",
	Short: "Run a command on a running machine over SSH",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		return s.engine.Exec(cmd.Context(), args[0], args[1], strings.Join(args[2:], " "))
	},
}

func init() {
	// Flags after the command belong to the remote command.
	execCmd.Flags().SetInterspersed(false)
}
