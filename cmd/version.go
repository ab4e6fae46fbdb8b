package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("{{.Version}}\n")
	rootCmd.Long = fmt.Sprintf(`Lectern %s

HCL-configured task engine for literature review.

Define models, modes, and tools in HCL configuration files, then run
interactive sessions or batch tasks against your project library.

Get started:
  lectern chat <mode>     Start an interactive session
  lectern task run        Run a batch task over project items
  lectern serve           Bridge progress events to a hub over WebSocket`, Version)
}
