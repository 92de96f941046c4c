package main

import (
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "advanced",
	Short:   "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (secrets redacted)",
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		out, err := cfg.Render(format)
		if err != nil {
			fatalf("%v", err)
		}
		_, _ = cmd.OutOrStdout().Write(out)
	},
}

func init() {
	configShowCmd.Flags().String("format", "yaml", "Output format: yaml or toml")

	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
