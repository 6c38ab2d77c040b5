package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func InitVersion(cmdRoot *cobra.Command) error {
	cmdVersion := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
			return nil
		},
	}
	cmdRoot.AddCommand(cmdVersion)
	return nil
}
