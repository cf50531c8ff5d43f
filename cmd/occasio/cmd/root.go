package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	envFile     string
	apiURL      string
	profileName string
	outputFmt   string
	showMetrics bool
)

var rootCmd = &cobra.Command{
	Use:   "occasio",
	Short: "Occasio is the command-line client for the Occasio booking platform",
	Long: `Book events and venues, review invoices and keep a login session alive from the terminal.
Tokens are stored per profile and renewed before they expire.`,
	SilenceUsage: true,
	Version:      Version,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to an env file with OCCASIO_* settings")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API root URL (overrides OCCASIO_API_URL)")
	rootCmd.PersistentFlags().StringVar(&profileName, "profile", "", "Token profile to use (overrides OCCASIO_PROFILE)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "", "Output format: table, json or yaml (overrides OCCASIO_OUTPUT)")
	rootCmd.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "Print HTTP client metrics to stderr on exit")
}
