package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "daybook",
	Short: "Personal journal with AI reflections",
	Long: `daybook is a journaling service with an AI companion: save entries,
get an initial reflection on each one, chat about it, and pull summaries.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.Version = version

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(entriesCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(prefsCmd)
	rootCmd.AddCommand(quotaCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
