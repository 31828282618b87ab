package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"invoicekit/internal/account"
	"invoicekit/internal/logger"
)

var ibanCmd = &cobra.Command{
	Use:   "iban",
	Short: "Derive, validate and format IBANs",
	Long: `Work with Czech account numbers and IBANs.

Domestic account numbers have the form [prefix-]number/bankCode, for
example 19-2000145399/0800. The IBAN check digits are computed with the
ISO 7064 mod-97 algorithm.`,
}

var ibanDeriveCmd = &cobra.Command{
	Use:   "derive [account]",
	Short: "Derive the IBAN of a domestic account number",
	Example: `  invoicekit iban derive 19-2000145399/0800
  invoicekit iban derive 2600456000/2010 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runIbanDerive,
}

var ibanValidateCmd = &cobra.Command{
	Use:     "validate [iban]",
	Short:   "Check the mod-97 checksum of an IBAN",
	Example: `  invoicekit iban validate "CZ65 0800 0000 1920 0014 5399"`,
	Args:    cobra.ExactArgs(1),
	RunE:    runIbanValidate,
}

var ibanFormatCmd = &cobra.Command{
	Use:   "format [iban]",
	Short: "Print an IBAN in groups of four characters",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(account.FormatIban(args[0]))
		return nil
	},
}

type ibanOutput struct {
	Account  string `json:"account"`
	IBAN     string `json:"iban"`
	Display  string `json:"display"`
	BankCode string `json:"bank_code"`
	BankName string `json:"bank_name,omitempty"`
	Swift    string `json:"swift,omitempty"`
}

func init() {
	rootCmd.AddCommand(ibanCmd)
	ibanCmd.AddCommand(ibanDeriveCmd, ibanValidateCmd, ibanFormatCmd)

	ibanDeriveCmd.Flags().Bool("json", false, "Print the result as JSON including bank details")
}

func runIbanDerive(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("iban")
	asJSON, _ := cmd.Flags().GetBool("json")

	acc, err := account.ParseAccount(args[0])
	if err != nil {
		log.Debug().Err(err).Str("account", args[0]).Msg("Account number rejected")
		return fmt.Errorf("invalid account number %q: expected [prefix-]number/bankCode", args[0])
	}
	iban, err := account.DeriveIban(args[0])
	if err != nil {
		return err
	}

	if !asJSON {
		fmt.Println(iban)
		return nil
	}

	out := ibanOutput{
		Account:  acc.String(),
		IBAN:     iban,
		Display:  account.FormatIban(iban),
		BankCode: acc.BankCode,
	}
	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if bank, ok := loadBanks(cfg, log).Lookup(acc.BankCode); ok {
		out.BankName = bank.Name
		out.Swift = bank.Swift
	}
	return writeOutput(out, "", log)
}

func runIbanValidate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("iban")

	iban := account.NormalizeIban(args[0])
	err := account.CheckIban(iban)
	switch {
	case err == nil:
		fmt.Printf("%s is valid\n", account.FormatIban(iban))
		return nil
	case errors.Is(err, account.ErrChecksum):
		log.Debug().Str("iban", iban).Msg("IBAN checksum mismatch")
		return fmt.Errorf("%s: checksum mismatch", iban)
	default:
		return fmt.Errorf("%q is not a well-formed IBAN", args[0])
	}
}
