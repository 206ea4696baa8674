package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fuzzrelay",
		Short: "Intercepting TCP relay for protocol fuzz testing",
		Long: `fuzzrelay sits between a client and a server, forwards traffic in both
directions and applies deterministic, reproducible mutations to the payloads.
Every mutation is identified by a test index, so a crash can be replayed by
running the same index again.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRelayCmd())
	rootCmd.AddCommand(newStubCmd())
	rootCmd.AddCommand(newCaptureCmd())
	rootCmd.AddCommand(newJournalCmd())
	rootCmd.AddCommand(newHandlersCmd())
	rootCmd.AddCommand(newModesCmd())
	rootCmd.AddCommand(newValidateConfigCmd())
	rootCmd.AddCommand(newPrintDefaultConfigCmd())
	rootCmd.AddCommand(newInitCmd())

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != rootCmd {
			fmt.Fprint(cmd.OutOrStdout(), cmd.UsageString())
			return
		}
		fmt.Fprintf(os.Stdout, "Usage:\n  %s <command> [arguments] [options]\n\n", cmd.Name())
		fmt.Fprintf(os.Stdout, "Available Commands:\n")
		for _, subCmd := range cmd.Commands() {
			if !subCmd.Hidden {
				fmt.Fprintf(os.Stdout, "  %-22s %s\n", subCmd.Name(), subCmd.Short)
			}
		}
		fmt.Fprintf(os.Stdout, "\nUse \"%s help <command>\" for more information about a command.\n", cmd.Name())
	})
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
