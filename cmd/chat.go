package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"lectern/agent"
	"lectern/config"
	"lectern/streamers"
	"lectern/streamers/cli"
)

var (
	chatConfigPath string
	chatOwner      string
	chatScope      []string
)

var chatCmd = &cobra.Command{
	Use:   "chat [mode]",
	Short: "Start an interactive session in a mode",
	Long: `Start an interactive session with the engine in the given mode.
The mode's tool subset and prompt come from the config; tools backed by
external collaborators must be declared as tool blocks.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		modeName := args[0]
		ctx := context.Background()

		cfg, err := config.LoadAndValidate(chatConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		engine, err := agent.NewEngine(ctx, agent.EngineOptions{Config: cfg})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer engine.Close()

		chat, err := engine.NewChat(ctx, chatOwner, chatScope, modeName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer chat.Finish(ctx)

		streamer := cli.NewChatHandler()
		streamer.Welcome(modeName, chat.Model())

		// Persist events alongside rendering them.
		handler := streamers.NewStoringSessionHandler(streamer, engine.Stores().Events, chat.SessionID())

		for {
			input, err := streamer.ReadInput()
			if err != nil {
				if err == io.EOF {
					streamer.Goodbye()
					break
				}
				streamer.Error(err)
				break
			}

			if input == "" {
				continue
			}
			if input == "exit" || input == "quit" {
				streamer.Goodbye()
				break
			}

			_, _ = chat.Send(ctx, input, handler)
		}
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatConfigPath, "config", "c", ".", "Path to config file or directory")
	chatCmd.Flags().StringVar(&chatOwner, "owner", "", "Owner identity the session runs as")
	chatCmd.Flags().StringSliceVar(&chatScope, "scope", nil, "Project item ids in scope")
	chatCmd.MarkFlagRequired("owner")
	rootCmd.AddCommand(chatCmd)
}
