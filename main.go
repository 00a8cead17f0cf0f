package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var (
		configDir string
		relayURL  string
		room      string
	)

	rootCmd := &cobra.Command{
		Use:          "greenflash",
		Short:        "Two-device reaction time tester",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "config", "Directory holding config.yaml")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server that pairs displays with triggers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configDir)
		},
	}

	displayCmd := &cobra.Command{
		Use:   "display",
		Short: "Run the display device that shows the stimulus and measures reactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDisplay(cmd.Context(), configDir, relayURL, room)
		},
	}

	triggerCmd := &cobra.Command{
		Use:   "trigger",
		Short: "Run the trigger device that fires the stimulus on a paired display",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrigger(cmd.Context(), configDir, relayURL, room)
		},
	}

	for _, c := range []*cobra.Command{displayCmd, triggerCmd} {
		c.Flags().StringVar(&relayURL, "relay", "", "Relay websocket URL (overrides relay.url)")
		c.Flags().StringVar(&room, "room", "", "Room code shared by the display and the trigger (overrides relay.room)")
	}

	rootCmd.AddCommand(serveCmd, displayCmd, triggerCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
