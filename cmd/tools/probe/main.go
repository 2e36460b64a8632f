// Probe drives the Aserras UI runtime against a running server from the
// terminal.
//
// It fetches a rendered page, boots the runtime from the injected globals and
// then exercises the same controllers the browser uses: sign in, chat and
// history. The session survives between invocations in a small JSON file.
//
// Usage:
//
//	aserras-probe [command] [flags]
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/aserras/web/backend/internal/logging"
)

var (
	baseURL   string
	storePath string
	verbose   bool
)

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "aserras-probe",
	Short: "Aserras UI runtime probe",
	Long: `Boots the Aserras UI runtime from a page served by a running
backend and drives its controllers from the command line.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		return logging.Initialize(level)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&baseURL, "base", envOr("ASERRAS_PROBE_BASE", "http://localhost:8080"), "Server origin")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", envOr("ASERRAS_PROBE_STORE", ".aserras-probe.json"), "Session storage file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
