package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"invoicekit/internal/logger"
	"invoicekit/pkg/models"
)

var numberCmd = &cobra.Command{
	Use:   "number",
	Short: "Inspect and allocate document numbers",
	Long: `Inspect and allocate year-scoped document numbers.

Numbers have the form <year><6-digit sequence>, e.g. 2025000001, and are
shown with a kind tag (FV for invoices, OBJ for orders). A number is only
consumed when it is committed; reservations do not outlive the process.`,
}

var numberShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the next number of every kind for each stored year",
	Args:  cobra.NoArgs,
	RunE:  runNumberShow,
}

var numberReserveCmd = &cobra.Command{
	Use:   "reserve [invoice|order]",
	Short: "Print the next number of a kind, optionally committing it",
	Example: `  # Show the candidate without consuming it
  invoicekit number reserve invoice

  # Consume the number, e.g. for a document issued by hand
  invoicekit number reserve order --commit`,
	Args: cobra.ExactArgs(1),
	RunE: runNumberReserve,
}

var numberCommitCmd = &cobra.Command{
	Use:   "commit [invoice|order] [number]",
	Short: "Commit a previously shown candidate number",
	Long: `Commit number if it is still the next candidate of its kind. Fails
when another document has taken it in the meantime.`,
	Example: `  invoicekit number commit invoice 2025000007`,
	Args:    cobra.ExactArgs(2),
	RunE:    runNumberCommit,
}

type numberOutput struct {
	Kind      models.Kind `json:"kind"`
	Number    string      `json:"number"`
	Display   string      `json:"display"`
	Committed bool        `json:"committed"`
}

func init() {
	rootCmd.AddCommand(numberCmd)
	numberCmd.AddCommand(numberShowCmd, numberReserveCmd, numberCommitCmd)

	numberReserveCmd.Flags().Bool("commit", false, "Commit the reserved number")
}

func runNumberShow(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("number")

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	seq, closeStore, err := openSequencer(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	return writeOutput(seq.Snapshot(), "", log)
}

func runNumberReserve(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("number")
	commit, _ := cmd.Flags().GetBool("commit")

	kind, err := models.ParseKind(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	seq, closeStore, err := openSequencer(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	number, err := seq.Reserve(kind)
	if err != nil {
		return err
	}

	out := numberOutput{Kind: kind, Number: number, Display: kind.Tag() + "-" + number}
	if commit {
		if _, err := seq.Commit(kind); err != nil {
			return err
		}
		out.Committed = true
	}
	return writeOutput(out, "", log)
}

func runNumberCommit(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("number")

	kind, err := models.ParseKind(args[0])
	if err != nil {
		return err
	}
	want := args[1]

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	seq, closeStore, err := openSequencer(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	number, err := seq.Reserve(kind)
	if err != nil {
		return err
	}
	if number != want {
		seq.Abandon(kind)
		log.Warn().
			Str("kind", string(kind)).
			Str("requested", want).
			Str("candidate", number).
			Msg("Requested number is no longer the candidate")
		return fmt.Errorf("%s is not the next %s number (next is %s)", want, kind, number)
	}
	if _, err := seq.Commit(kind); err != nil {
		return err
	}

	return writeOutput(numberOutput{Kind: kind, Number: number, Display: kind.Tag() + "-" + number, Committed: true}, "", log)
}
