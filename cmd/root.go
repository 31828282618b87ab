package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"invoicekit/internal/logger"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "invoicekit",
	Short: "invoicekit - Czech invoice numbering, totals and QR payment tooling",
	Long: `invoicekit issues Czech invoices and orders from YAML documents.

It derives and validates IBANs from domestic account numbers, computes
VAT totals with whole-crown rounding, allocates year-scoped document numbers
that are never reused and builds the QR Platba (SPD) payment payload.

Configuration is read from environment variables or a .env file:
  COUNTER_BACKEND  file or bolt (default: file)
  COUNTER_PATH     counter store location (default: ./data/counters.json)
  BANKS_FILE       bank table JSON (default: built-in table)
  EXPORT_DIR       where issued documents are written (default: ./out)
  HTTP_ADDR        listen address for serve (default: :8085)
  ARES_BASE_URL    ARES REST API root
  LOG_LEVEL, LOG_FORMAT, LOG_TIME_FORMAT, LOG_OUTPUT`,
	Version:      version,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Debug().
			Str("version", version).
			Msg("invoicekit executed without subcommand")

		_ = cmd.Help()
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}
