package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"invoicekit/internal/logger"
	"invoicekit/internal/registry"
)

var registryCmd = &cobra.Command{
	Use:     "registry [ico]",
	Short:   "Look up a company in the ARES register by IČO",
	Example: `  invoicekit registry 27082440`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.WithComponent("registry")

		cfg, err := loadConfig(log)
		if err != nil {
			return err
		}

		ctx, cancel := createCommandContext(cfg.AresTimeout+time.Second, log)
		defer cancel()

		res, err := registry.NewARESClient(cfg.AresBaseURL, cfg.AresTimeout).Lookup(ctx, args[0])
		if err != nil {
			return fmt.Errorf("ARES lookup failed: %w", err)
		}
		if !res.Found() {
			return fmt.Errorf("no subject with IČO %s found in ARES", args[0])
		}
		return writeOutput(res, "", log)
	},
}

func init() {
	rootCmd.AddCommand(registryCmd)
}
