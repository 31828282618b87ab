package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind identifies the type of a financial document. Numbering is kept
// separately per kind.
type Kind string

const (
	KindInvoice Kind = "invoice" // Faktura
	KindOrder   Kind = "order"   // Objednávka
)

// Kinds lists every supported document kind in a stable order.
var Kinds = []Kind{KindInvoice, KindOrder}

// DefaultCurrency is used when a document carries no currency code.
const DefaultCurrency = "CZK"

// DefaultPaymentMethod is the payment method preselected on new documents.
const DefaultPaymentMethod = "Převodem"

// ParseKind parses a kind name (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindInvoice:
		return KindInvoice, nil
	case KindOrder:
		return KindOrder, nil
	}
	return "", fmt.Errorf("unknown document kind %q (expected invoice or order)", s)
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	return k == KindInvoice || k == KindOrder
}

// Tag returns the literal prefix shown in front of the allocated number.
func (k Kind) Tag() string {
	if k == KindOrder {
		return "OBJ"
	}
	return "FV"
}

// Label returns the Czech document title.
func (k Kind) Label() string {
	if k == KindOrder {
		return "Objednávka"
	}
	return "Faktura"
}

// Party is a supplier or customer on a document.
type Party struct {
	Name          string `json:"name" yaml:"name"`
	Address       string `json:"address" yaml:"address"`
	City          string `json:"city" yaml:"city"`
	Country       string `json:"country,omitempty" yaml:"country,omitempty"`
	NationalID    string `json:"ico" yaml:"ico"`                              // IČO
	TaxID         string `json:"dic,omitempty" yaml:"dic,omitempty"`          // DIČ, empty for non VAT payers
	BankName      string `json:"bank_name,omitempty" yaml:"bank_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty" yaml:"account_number,omitempty"` // [prefix-]number/bankCode
	IBAN          string `json:"iban,omitempty" yaml:"iban,omitempty"`
	SWIFT         string `json:"swift,omitempty" yaml:"swift,omitempty"`
	Email         string `json:"email,omitempty" yaml:"email,omitempty"`
	Phone         string `json:"phone,omitempty" yaml:"phone,omitempty"`
}

// IsVatPayer reports whether the party is registered for VAT.
func (p Party) IsVatPayer() bool {
	return strings.TrimSpace(p.TaxID) != ""
}

// LineItem is one row of a document.
type LineItem struct {
	Name      string          `json:"name" yaml:"name"`
	Unit      string          `json:"unit" yaml:"unit"`
	Quantity  decimal.Decimal `json:"quantity" yaml:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" yaml:"unit_price"`
	VatRate   decimal.Decimal `json:"vat_rate" yaml:"vat_rate"` // fraction, e.g. 0.21
}

// Net returns quantity * unit price.
func (li LineItem) Net() decimal.Decimal {
	return li.Quantity.Mul(li.UnitPrice)
}

// Vat returns the line VAT rounded to two decimals (half away from zero).
func (li LineItem) Vat() decimal.Decimal {
	return li.Net().Mul(li.VatRate).Round(2)
}

// Gross returns Net + Vat.
func (li LineItem) Gross() decimal.Decimal {
	return li.Net().Add(li.Vat())
}

// Document is an invoice or order being edited or issued.
type Document struct {
	Kind              Kind       `json:"kind" yaml:"kind"`
	Number            string     `json:"number" yaml:"number"`
	IssueDate         time.Time  `json:"issue_date" yaml:"issue_date"`
	DueDate           time.Time  `json:"due_date" yaml:"due_date"`
	TaxableSupplyDate *time.Time `json:"taxable_supply_date,omitempty" yaml:"taxable_supply_date,omitempty"` // DUZP
	VariableSymbol    string     `json:"variable_symbol" yaml:"variable_symbol"`
	ConstantSymbol    string     `json:"constant_symbol,omitempty" yaml:"constant_symbol,omitempty"`
	Currency          string     `json:"currency" yaml:"currency"`
	PaymentMethod     string     `json:"payment_method,omitempty" yaml:"payment_method,omitempty"`
	Supplier          Party      `json:"supplier" yaml:"supplier"`
	Customer          Party      `json:"customer" yaml:"customer"`
	Lines             []LineItem `json:"lines" yaml:"lines"`
	Notes             string     `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// NewDocument returns a blank document of the given kind with the defaults
// of a fresh editing session: issued today, due in 14 days.
func NewDocument(kind Kind, today time.Time) *Document {
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	supply := day
	return &Document{
		Kind:              kind,
		IssueDate:         day,
		DueDate:           day.AddDate(0, 0, 14),
		TaxableSupplyDate: &supply,
		Currency:          DefaultCurrency,
		PaymentMethod:     DefaultPaymentMethod,
	}
}

// CurrencyOrDefault returns the upper-cased currency code, CZK if unset.
func (d *Document) CurrencyOrDefault() string {
	c := strings.ToUpper(strings.TrimSpace(d.Currency))
	if c == "" {
		return DefaultCurrency
	}
	return c
}

// DisplayNumber returns the number with its kind tag, e.g. "FV-2025000001".
// Empty while no number has been assigned.
func (d *Document) DisplayNumber() string {
	if d.Number == "" {
		return ""
	}
	return d.Kind.Tag() + "-" + d.Number
}

// EffectiveVariableSymbol returns the variable symbol, falling back to the
// digits of the document number.
func (d *Document) EffectiveVariableSymbol() string {
	if strings.TrimSpace(d.VariableSymbol) != "" {
		return d.VariableSymbol
	}
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, d.Number)
}
