// Package main provides the command-line entry point for the filing validator.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "filing_validator",
	Short: "Validate tagged financial filings against reference taxonomies",
	Long: `filing_validator extracts tagged rows and narrative text from filing workbooks and HTML
reports, matches the declared taxonomy to a reference workbook, and has a language model
check the tagging. Results are written to object storage as a JSON document.

Configuration comes from an optional JSON file (--config) overridden by environment
variables; a .env file in the working directory is loaded first.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.json (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
