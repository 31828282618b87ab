// Package registry looks up Czech businesses by national ID (IČO) in the
// public ARES register.
//
// A lookup is best effort: any field of Result may be empty, and a Result
// with no fields at all means the subject was not found.
package registry

import (
	"context"
	"regexp"
	"strings"

	"invoicekit/pkg/models"
)

// DefaultCountry is set on parties filled from the register.
const DefaultCountry = "Česká republika"

// Registry resolves a national ID to company details.
type Registry interface {
	Lookup(ctx context.Context, nationalID string) (Result, error)
}

// Result holds whatever the register returned.
type Result struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"` // "PSČ obec"
	TaxID   string `json:"dic,omitempty"`
}

// Found reports whether the register knew the subject.
func (r Result) Found() bool {
	return r.Name != "" || r.Address != "" || r.City != ""
}

// Apply copies the non-empty fields into p.
func (r Result) Apply(p *models.Party) {
	if !r.Found() {
		return
	}
	if r.Name != "" {
		p.Name = r.Name
	}
	if r.Address != "" {
		p.Address = r.Address
	}
	if r.City != "" {
		p.City = r.City
	}
	if r.TaxID != "" {
		p.TaxID = r.TaxID
	}
	p.Country = DefaultCountry
}

// "Ulice 12, 110 00 Praha 1"
var seatPattern = regexp.MustCompile(`^\s*(.+?),\s*(\d{3}\s?\d{2})\s+(.+)$`)

// SplitAddress splits a one-line Czech address into street and "PSČ obec".
// If the text does not end in a postal code and town, everything is returned
// as the street.
func SplitAddress(text string) (street, city string) {
	m := seatPattern.FindStringSubmatch(text)
	if m == nil {
		return strings.TrimSpace(text), ""
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]) + " " + strings.TrimSpace(m[3])
}

// NormalizeID keeps the digits of a national ID and left-pads it to the
// 8-digit IČO form. Empty if the input has no digits or more than 8.
func NormalizeID(id string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, id)
	if digits == "" || len(digits) > 8 {
		return ""
	}
	return strings.Repeat("0", 8-len(digits)) + digits
}
