package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quotecraft/drew"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of Drew",
	// No config needed to print a version.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "drew v%s\n", strings.TrimSpace(drew.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
