// Package payment builds the Czech "QR Platba" payment descriptor (SPD 1.0)
// that banking apps read from a QR code on an invoice.
//
// Wire format, a single line with fields in fixed order:
//
//	SPD*1.0*ACC:<IBAN>*AM:<amount>*CC:<currency>[*X-VS:<vs>][*X-KS:<ks>][*MSG:<message>]
//
// Rendering the QR image is left to the caller.
package payment

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// Header is the protocol and version token every payload starts with.
	Header = "SPD*1.0"

	// Delimiter separates fields.
	Delimiter = "*"

	DefaultCurrency = "CZK"
)

// Field tags.
const (
	TagAccount        = "ACC"
	TagAmount         = "AM"
	TagCurrency       = "CC"
	TagVariableSymbol = "X-VS"
	TagConstantSymbol = "X-KS"
	TagMessage        = "MSG"
)

var (
	accountPattern  = regexp.MustCompile(`^[A-Z0-9]+$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
)

// Request is the input of Build. Optional fields may be left empty.
type Request struct {
	IBAN           string
	Amount         decimal.Decimal
	Currency       string
	VariableSymbol string
	ConstantSymbol string
	Message        string
}

// Payload is a sanitized payment instruction. Use String for the wire form.
type Payload struct {
	Account        string `json:"account"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	VariableSymbol string `json:"variable_symbol,omitempty"`
	ConstantSymbol string `json:"constant_symbol,omitempty"`
	Message        string `json:"message,omitempty"`
}

// Build validates and sanitizes req. It fails with a *ValidationError
// (matching ErrValidation) when the IBAN is missing or unusable, the
// currency is not a 3-letter code, or the amount is negative.
func Build(req Request) (*Payload, error) {
	account := NormalizeAccount(req.IBAN)
	if account == "" {
		return nil, NewValidationError("iban", req.IBAN, "destination account is required")
	}
	if !accountPattern.MatchString(account) {
		return nil, NewValidationError("iban", req.IBAN, "must contain only letters and digits")
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	if !currencyPattern.MatchString(currency) {
		return nil, NewValidationError("currency", req.Currency, "must be a 3-letter currency code")
	}

	if req.Amount.IsNegative() {
		return nil, NewValidationError("amount", req.Amount.String(), "must not be negative")
	}

	return &Payload{
		Account:        account,
		Amount:         FormatAmount(req.Amount),
		Currency:       currency,
		VariableSymbol: SanitizeSymbol(req.VariableSymbol),
		ConstantSymbol: SanitizeSymbol(req.ConstantSymbol),
		Message:        SanitizeMessage(req.Message),
	}, nil
}

// FormatAmount renders d with at most two decimals, a decimal point and no
// insignificant trailing zeros: 1234.5, 100, 0.05.
func FormatAmount(d decimal.Decimal) string {
	return d.Round(2).String()
}

// String returns the wire form of the payload.
func (p *Payload) String() string {
	fields := []string{
		Header,
		TagAccount + ":" + p.Account,
		TagAmount + ":" + p.Amount,
		TagCurrency + ":" + p.Currency,
	}
	if p.VariableSymbol != "" {
		fields = append(fields, TagVariableSymbol+":"+p.VariableSymbol)
	}
	if p.ConstantSymbol != "" {
		fields = append(fields, TagConstantSymbol+":"+p.ConstantSymbol)
	}
	if p.Message != "" {
		fields = append(fields, TagMessage+":"+p.Message)
	}
	return strings.Join(fields, Delimiter)
}
