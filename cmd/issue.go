package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"invoicekit/internal/document"
	"invoicekit/internal/logger"
	"invoicekit/internal/numbering"
	"invoicekit/internal/registry"
	"invoicekit/pkg/models"
)

var issueCmd = &cobra.Command{
	Use:   "issue [document.yaml]",
	Short: "Number and export an invoice or order",
	Long: `Issue a document described in a YAML file.

The supplier IBAN is derived from its domestic account number when not
given, bank name and SWIFT are filled from the bank table, the next number
of the document kind is allocated and, for invoices, the QR payment payload
is built. The finished document is written as JSON into the export
directory and only then is the number committed. If the export fails the
number stays available for the next document.`,
	Example: `  invoicekit issue invoice.yaml
  invoicekit issue order.yaml --export-dir ./archive

  # Fill the customer's name, address and DIČ from ARES first
  invoicekit issue invoice.yaml --lookup-customer`,
	Args: cobra.ExactArgs(1),
	RunE: runIssue,
}

func init() {
	rootCmd.AddCommand(issueCmd)

	issueCmd.Flags().String("export-dir", "", "Directory for issued documents (default: EXPORT_DIR)")
	issueCmd.Flags().Bool("lookup-customer", false, "Complete customer details from the ARES register")
	issueCmd.Flags().Int("timeout", 30, "Timeout in seconds")
}

func runIssue(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("issue")

	exportDir, _ := cmd.Flags().GetString("export-dir")
	lookupCustomer, _ := cmd.Flags().GetBool("lookup-customer")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if exportDir == "" {
		exportDir = cfg.ExportDir
	}

	doc, err := loadDocumentFile(args[0])
	if err != nil {
		return err
	}
	if doc.IssueDate.IsZero() {
		fresh := models.NewDocument(doc.Kind, time.Now())
		doc.IssueDate, doc.DueDate = fresh.IssueDate, fresh.DueDate
		if doc.TaxableSupplyDate == nil {
			doc.TaxableSupplyDate = fresh.TaxableSupplyDate
		}
	}

	ctx, cancel := createCommandContext(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	if lookupCustomer {
		reg := registry.NewARESClient(cfg.AresBaseURL, cfg.AresTimeout)
		res, err := reg.Lookup(ctx, doc.Customer.NationalID)
		if err != nil {
			log.Warn().Err(err).Msg("ARES lookup failed, keeping customer details from file")
		} else if !res.Found() {
			log.Warn().Str("ico", doc.Customer.NationalID).Msg("Customer not found in ARES")
		} else {
			res.Apply(&doc.Customer)
		}
	}

	seq, closeStore, err := openSequencer(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := document.NewService(seq, document.NewJSONExporter(exportDir), loadBanks(cfg, log))

	log.Info().
		Str("file", args[0]).
		Str("kind", string(doc.Kind)).
		Str("export_dir", exportDir).
		Msg("Issuing document")

	res, err := svc.Issue(ctx, doc)
	if err != nil {
		return handleIssueError(err, res, log)
	}

	fmt.Printf("%s %s issued: %s\n", doc.Kind.Label(), doc.DisplayNumber(), res.Location)
	fmt.Printf("K úhradě: %s %s\n", res.Artifact.Totals.Payable, doc.CurrencyOrDefault())
	if res.Artifact.PaymentString != "" {
		fmt.Printf("QR: %s\n", res.Artifact.PaymentString)
	}
	return nil
}

// handleIssueError turns workflow failures into actionable messages
func handleIssueError(err error, res *document.Result, log zerolog.Logger) error {
	switch {
	case errors.Is(err, document.ErrAccount):
		return fmt.Errorf("supplier bank account is invalid, check account_number or iban: %w", err)
	case errors.Is(err, numbering.ErrCapacityExceeded):
		return fmt.Errorf("no document numbers left for this year: %w", err)
	case errors.Is(err, document.ErrExport):
		return fmt.Errorf("export failed, no number was consumed: %w", err)
	case errors.Is(err, document.ErrNotFinalized):
		location := ""
		if res != nil {
			location = res.Location
		}
		log.Error().
			Str("location", location).
			Msg("Document written but counter not saved; remove the file or commit the number manually")
		return fmt.Errorf("document written to %s but its number could not be saved: %w", location, err)
	default:
		return err
	}
}
