package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/fuzzrelay/internal/app"
)

func newHandlersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "handlers",
		Short: "List handler presets and handlers",
		RunE: func(cmd *cobra.Command, args []string) error {
			app.ListHandlers(cmd.OutOrStdout())
			return nil
		},
	}
}

func newModesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List relay modes",
		RunE: func(cmd *cobra.Command, args []string) error {
			app.ListModes(cmd.OutOrStdout())
			return nil
		},
	}
}

func newValidateConfigCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Validate a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath == "" {
				cfgPath = "fuzzrelay.yaml"
			}
			return app.ValidateConfig(cmd.OutOrStdout(), cfgPath)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "Config file path (default \"fuzzrelay.yaml\")")
	return cmd
}

func newPrintDefaultConfigCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "print-default-config",
		Short: "Print a default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if mode != "" {
				return app.PrintModeConfig(cmd.OutOrStdout(), mode)
			}
			return app.PrintDefaultConfig(cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "Apply a mode preset before printing")
	return cmd
}

func newInitCmd() *cobra.Command {
	var opts app.InitOptions
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a config file interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunInit(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "fuzzrelay.yaml", "Config file to write")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "Overwrite an existing file")
	return cmd
}
