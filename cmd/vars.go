package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"lectern/config"
)

var varsCmd = &cobra.Command{
	Use:   "vars",
	Short: "Manage local configuration variables",
	Long:  `Manage the local variable store that config variable blocks resolve against.`,
}

var varsSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Set a variable",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := config.SetVar(args[0], args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Set '%s'\n", args[0])
	},
}

var varsGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print a variable's value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		value, err := config.GetVar(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(value)
	},
}

var varsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List variable names",
	Run: func(cmd *cobra.Command, args []string) {
		names, err := config.ListVars()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Println(name)
		}
	},
}

var varsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a variable",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := config.DeleteVar(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted '%s'\n", args[0])
	},
}

func init() {
	varsCmd.AddCommand(varsSetCmd, varsGetCmd, varsListCmd, varsDeleteCmd)
	rootCmd.AddCommand(varsCmd)
}
