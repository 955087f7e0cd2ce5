package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "triage-assistant",
	Short: "Multilingual health triage assistant",
	Long: `Serves the triage HTTP API: text and voice turns, symptom follow-up
interviews, assessments and, when a database is configured, accounts with
saved conversations.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
