package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// handleHelpArg treats a bare "help" argument as --help.
func handleHelpArg(cmd *cobra.Command, args []string) bool {
	if len(args) == 0 || !strings.EqualFold(args[0], "help") {
		return false
	}
	_ = cmd.Help()
	return true
}

// missingFlagError prints usage and names the command that needs flag.
func missingFlagError(cmd *cobra.Command, flag string) error {
	_ = cmd.Help()
	return fmt.Errorf("%s: required flag %s not set", cmd.CommandPath(), flag)
}
