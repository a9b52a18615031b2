package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time.
var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "presenced",
		Short: "Realtime presence and channel messaging server",
		Long: `presenced keeps the websocket sessions of online players: channel
chat, district and crew presence, friend notifications, and the
internal push API sibling services deliver events through.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		tokenCmd(),
		seedCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
