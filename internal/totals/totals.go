// Package totals aggregates document line items into VAT-rate groups and
// rounds the payable amount to whole currency units.
//
// All arithmetic uses exact decimals. The reconciliation invariant
//
//	Payable == GrandTotal + RoundingDelta
//
// holds to full precision for every result of Compute.
package totals

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"invoicekit/pkg/models"
)

// ErrUnbalanced is returned by Totals.Check when the rounding reconciliation
// does not add up. It indicates a bug or a hand-modified Totals value.
var ErrUnbalanced = errors.New("totals do not reconcile")

var half = decimal.New(5, -1)

// RateGroup is the per-VAT-rate subtotal shown in the document VAT summary.
type RateGroup struct {
	Rate  decimal.Decimal `json:"rate"`
	Base  decimal.Decimal `json:"base"`
	Vat   decimal.Decimal `json:"vat"`
	Gross decimal.Decimal `json:"gross"`
	Lines int             `json:"lines"`
}

// Percent returns the rate as a percentage, e.g. 21 for 0.21.
func (g RateGroup) Percent() decimal.Decimal {
	return g.Rate.Shift(2)
}

// Totals is the result of Compute.
type Totals struct {
	Groups        []RateGroup     `json:"groups"`
	Base          decimal.Decimal `json:"base"`
	Vat           decimal.Decimal `json:"vat"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	RoundingDelta decimal.Decimal `json:"rounding_delta"`
	Payable       decimal.Decimal `json:"payable"`
}

// Compute groups lines by VAT rate and derives the document totals. When the
// supplier is not a VAT payer every group's VAT is zero, but lines are still
// grouped under their nominal rate.
func Compute(lines []models.LineItem, supplierIsVatPayer bool) Totals {
	byRate := make(map[string]*RateGroup)
	for _, li := range lines {
		key := li.VatRate.String()
		g, ok := byRate[key]
		if !ok {
			g = &RateGroup{Rate: li.VatRate, Base: decimal.Zero, Vat: decimal.Zero}
			byRate[key] = g
		}
		net := li.Net()
		g.Base = g.Base.Add(net)
		if supplierIsVatPayer {
			g.Vat = g.Vat.Add(net.Mul(li.VatRate))
		}
		g.Lines++
	}

	t := Totals{
		Groups: make([]RateGroup, 0, len(byRate)),
		Base:   decimal.Zero,
		Vat:    decimal.Zero,
	}
	for _, g := range byRate {
		g.Gross = g.Base.Add(g.Vat)
		t.Base = t.Base.Add(g.Base)
		t.Vat = t.Vat.Add(g.Vat)
		t.Groups = append(t.Groups, *g)
	}
	sort.Slice(t.Groups, func(i, j int) bool {
		return t.Groups[i].Rate.GreaterThan(t.Groups[j].Rate)
	})

	t.GrandTotal = t.Base.Add(t.Vat)
	t.Payable = RoundWhole(t.GrandTotal)
	t.RoundingDelta = t.Payable.Sub(t.GrandTotal)
	return t
}

// RoundWhole rounds d to zero decimal places, ties away from zero.
func RoundWhole(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}

// Check verifies the rounding reconciliation and the bound on the delta.
func (t Totals) Check() error {
	if !t.GrandTotal.Add(t.RoundingDelta).Equal(t.Payable) {
		return fmt.Errorf("%w: %s + %s != %s", ErrUnbalanced, t.GrandTotal, t.RoundingDelta, t.Payable)
	}
	if t.RoundingDelta.Abs().GreaterThan(half) {
		return fmt.Errorf("%w: rounding delta %s exceeds 0.5", ErrUnbalanced, t.RoundingDelta)
	}
	if !t.Payable.Equal(t.Payable.Truncate(0)) {
		return fmt.Errorf("%w: payable %s is not a whole amount", ErrUnbalanced, t.Payable)
	}
	return nil
}

// Group returns the subtotal for rate, if any line uses it.
func (t Totals) Group(rate decimal.Decimal) (RateGroup, bool) {
	for _, g := range t.Groups {
		if g.Rate.Equal(rate) {
			return g, true
		}
	}
	return RateGroup{}, false
}
