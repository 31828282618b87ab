package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"invoicekit/internal/logger"
	"invoicekit/internal/totals"
)

var totalsCmd = &cobra.Command{
	Use:   "totals [document.yaml]",
	Short: "Compute VAT summary and payable amount of a document",
	Long: `Compute the VAT-rate grouped summary of a document's lines, the grand
total and the payable amount rounded to whole units.

VAT is charged only when the supplier has a DIČ; --vat-payer overrides
this.`,
	Example: `  invoicekit totals invoice.yaml
  invoicekit totals invoice.yaml --vat-payer=false -o totals.json`,
	Args: cobra.ExactArgs(1),
	RunE: runTotals,
}

func init() {
	rootCmd.AddCommand(totalsCmd)

	totalsCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	totalsCmd.Flags().Bool("vat-payer", false, "Treat the supplier as VAT payer regardless of DIČ")
}

func runTotals(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("totals")
	outputPath, _ := cmd.Flags().GetString("output")

	doc, err := loadDocumentFile(args[0])
	if err != nil {
		return err
	}

	vatPayer := doc.Supplier.IsVatPayer()
	if cmd.Flags().Changed("vat-payer") {
		vatPayer, _ = cmd.Flags().GetBool("vat-payer")
	}

	t := totals.Compute(doc.Lines, vatPayer)
	if err := t.Check(); err != nil {
		return fmt.Errorf("totals do not reconcile: %w", err)
	}

	log.Info().
		Str("file", args[0]).
		Int("lines", len(doc.Lines)).
		Bool("vat_payer", vatPayer).
		Str("payable", t.Payable.String()).
		Msg("Totals computed")

	return writeOutput(t, outputPath, log)
}
