// Package account converts Czech domestic account numbers to IBAN and
// validates IBANs using the ISO 7064 mod-97 check.
//
// Domestic format: [prefix-]number/bankCode, where prefix has up to 6
// digits, number 1 to 10 digits and bankCode exactly 4 digits. The Czech
// BBAN is bankCode(4) + prefix(6) + number(10).
//
// All functions are pure and safe for concurrent use.
package account

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	countryCode = "CZ"
	ibanLength  = 24
)

var (
	localAccountPattern = regexp.MustCompile(`^(?:(\d{0,6})-)?(\d{1,10})/(\d{4})$`)
	ibanPattern         = regexp.MustCompile(`^[A-Z0-9]{15,34}$`)
)

// Account is a parsed Czech domestic account number.
type Account struct {
	Prefix   string // zero-padded to 6 digits
	Number   string // zero-padded to 10 digits
	BankCode string // 4-digit clearing code
}

// BBAN returns bankCode + prefix + number (20 digits).
func (a Account) BBAN() string {
	return a.BankCode + a.Prefix + a.Number
}

// String renders the account in its short domestic form, without leading
// zeros, e.g. "19-2000145399/0800".
func (a Account) String() string {
	number := strings.TrimLeft(a.Number, "0")
	if number == "" {
		number = "0"
	}
	prefix := strings.TrimLeft(a.Prefix, "0")
	if prefix == "" {
		return number + "/" + a.BankCode
	}
	return prefix + "-" + number + "/" + a.BankCode
}

// ParseAccount parses a domestic account string. Surrounding whitespace is
// ignored.
func ParseAccount(account string) (Account, error) {
	const op = "ParseAccount"

	m := localAccountPattern.FindStringSubmatch(strings.TrimSpace(account))
	if m == nil {
		return Account{}, newAccountError(op, account, ErrParse)
	}
	return Account{
		Prefix:   leftPad(m[1], 6),
		Number:   leftPad(m[2], 10),
		BankCode: m[3],
	}, nil
}

// DeriveIban converts a domestic account string to an electronic-format IBAN
// (24 characters, no spaces).
//
//	DeriveIban("2600456000/2010") == "CZ7120100000002600456000"
func DeriveIban(account string) (string, error) {
	const op = "DeriveIban"

	acc, err := ParseAccount(account)
	if err != nil {
		return "", newAccountError(op, account, ErrParse)
	}
	return ibanFromBBAN(acc.BBAN()), nil
}

func ibanFromBBAN(bban string) string {
	rem := mod97(bban + countryCode + "00")
	check := 98 - rem
	return countryCode + leftPad(strconv.Itoa(check), 2) + bban
}

// ValidateIban reports whether s is a syntactically valid IBAN whose check
// digits verify. Spaces are ignored and letters may be lower case.
func ValidateIban(s string) bool {
	return CheckIban(s) == nil
}

// CheckIban validates s like ValidateIban but tells a syntax failure
// (ErrParse) apart from a checksum failure (ErrChecksum).
func CheckIban(s string) error {
	const op = "CheckIban"

	iban := NormalizeIban(s)
	if !ibanPattern.MatchString(iban) {
		return newAccountError(op, s, ErrParse)
	}
	rearranged := iban[4:] + iban[:4]
	if mod97(rearranged) != 1 {
		return newAccountError(op, s, ErrChecksum)
	}
	return nil
}

// NormalizeIban removes all whitespace and upper-cases s.
func NormalizeIban(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// FormatIban returns the IBAN in print format, grouped in blocks of four:
// "CZ65 0800 0000 1920 0014 5399".
func FormatIban(s string) string {
	iban := NormalizeIban(s)
	var b strings.Builder
	b.Grow(len(iban) + len(iban)/4)
	for i, r := range iban {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// BankCodeFromIban returns the 4-digit clearing code embedded in a Czech
// IBAN, or "" for IBANs of other countries.
func BankCodeFromIban(s string) string {
	iban := NormalizeIban(s)
	if len(iban) != ibanLength || !strings.HasPrefix(iban, countryCode) {
		return ""
	}
	return iban[4:8]
}

// mod97 computes the value of s modulo 97, where letters count as two-digit
// numbers (A=10 .. Z=35). s must contain only [0-9A-Z].
func mod97(s string) int {
	rem := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			rem = (rem*10 + int(c-'0')) % 97
		case c >= 'A' && c <= 'Z':
			v := int(c-'A') + 10
			rem = (rem*10 + v/10) % 97
			rem = (rem*10 + v%10) % 97
		}
	}
	return rem
}

func leftPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
