// Package cli implements the stustapayd command line: the combined
// API server, the bon worker, the payout export and small admin
// helpers.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stustapay/stustapayd/internal/config"
	"github.com/stustapay/stustapayd/internal/storage/relationaldb"
)

var (
	// Global flags
	configFile string
	debug      bool
	quiet      bool
)

// Exit codes: validation problems and database problems are
// distinguished so deployment scripts can tell them apart.
const (
	exitOK         = 0
	exitValidation = 1
	exitDatabase   = 2
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "stustapayd",
	Short: "stustapayd - festival cashless payment backend",
	Long: `stustapayd runs the transactional core of a festival cashless
payment system: the double-entry ledger, the order state machine for
sales, top-ups and pay-outs, the terminal and customer portal APIs,
the receipt worker and the SEPA payout export.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command line and maps failures onto the exit code
// contract: 1 for validation errors, 2 for database errors.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
	os.Exit(exitOK)
}

func exitCodeFor(err error) int {
	var dbErr *relationaldb.DatabaseError
	if errors.As(err, &dbErr) {
		return exitDatabase
	}
	return exitValidation
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "conf", "c", "", "configuration file path (required)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable normally suppressed debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log errors")
}

// newLogger builds the process logger from the global flags.
func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	if quiet {
		level = zerolog.ErrorLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// loadConfig reads the YAML configuration named by --conf.
func loadConfig() (*config.Config, error) {
	if configFile == "" {
		return nil, errors.New("no configuration file given, use --conf")
	}
	return config.LoadConfig(configFile)
}
