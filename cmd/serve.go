package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"lectern/wsbridge"
)

var (
	serveHubURL       string
	serveInstanceName string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Bridge progress events to a hub over WebSocket",
	Long: `Start a long-running process that connects to a hub via WebSocket.
The instance registers with the hub, which then receives session and task
progress events as they happen.`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := hclog.New(&hclog.LoggerOptions{Name: "lectern"})

		client := wsbridge.NewClient(serveHubURL, serveInstanceName, Version, logger)

		if err := connectWithRetry(client); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Connected to hub at %s (instance: %s, id: %s)\n",
			serveHubURL, serveInstanceName, client.InstanceID())

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

		done := make(chan error, 1)
		go func() {
			done <- client.Run()
		}()

		select {
		case <-stop:
			fmt.Println("\nShutting down...")
			client.Close()
		case err := <-done:
			if err != nil {
				fmt.Fprintf(os.Stderr, "Connection lost: %v\n", err)
				os.Exit(1)
			}
		}
	},
}

// connectWithRetry dials the hub with backoff so a briefly unavailable hub
// does not kill the instance at startup.
func connectWithRetry(client *wsbridge.Client) error {
	var err error
	delay := time.Second
	for attempt := 1; attempt <= 5; attempt++ {
		if err = client.Connect(); err == nil {
			return nil
		}
		fmt.Fprintf(os.Stderr, "Connect attempt %d failed: %v\n", attempt, err)
		time.Sleep(delay)
		delay *= 2
	}
	return err
}

func init() {
	serveCmd.Flags().StringVar(&serveHubURL, "hub", "", "WebSocket URL of the hub")
	serveCmd.Flags().StringVar(&serveInstanceName, "name", "lectern", "Instance name to register as")
	serveCmd.MarkFlagRequired("hub")
	rootCmd.AddCommand(serveCmd)
}
