package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pikostudio",
	Short: "Two-deck DJ mixer and step sequencer",
	Long: `pikostudio renders a two-deck mixer, an eight-pad step sequencer and a
session recorder, and exposes every control over HTTP and a websocket feed.`,
	SilenceUsage: true,
}

// Execute runs the command line.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
