package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"invoicekit/internal/logger"
)

var banksCmd = &cobra.Command{
	Use:   "banks [clearing-code]",
	Short: "List Czech banks or look one up by clearing code",
	Example: `  invoicekit banks
  invoicekit banks 0800`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.WithComponent("banks")

		cfg, err := loadConfig(log)
		if err != nil {
			return err
		}
		table := loadBanks(cfg, log)

		if len(args) == 0 {
			for _, b := range table.All() {
				fmt.Printf("%s  %-8s  %s\n", b.ClearingCode, b.Swift, b.Name)
			}
			return nil
		}

		b, ok := table.Lookup(args[0])
		if !ok {
			return fmt.Errorf("unknown bank code %s", args[0])
		}
		return writeOutput(b, "", log)
	},
}

func init() {
	rootCmd.AddCommand(banksCmd)
}
