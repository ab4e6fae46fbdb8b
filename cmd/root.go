package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lectern",
	Short: "Lectern is a literature-review task engine",
	Long:  `Lectern runs autonomous research tasks over a project library, driven by HCL configuration.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Welcome to Lectern! Use --help to see available commands.")
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
