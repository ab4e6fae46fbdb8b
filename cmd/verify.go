package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lectern/config"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Validate a configuration",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadAndValidate(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Configuration OK: %d models, %d modes, %d tools\n",
			len(cfg.Models), len(cfg.Modes), len(cfg.CustomTools))
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
