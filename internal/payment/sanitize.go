package payment

import (
	"strings"
	"unicode/utf8"
)

const (
	// MaxSymbolDigits is the length of the VS and KS fields.
	MaxSymbolDigits = 10

	// MaxMessageLength is the maximum number of characters kept in MSG.
	MaxMessageLength = 60
)

// SanitizeSymbol returns only the ASCII digits of s. If more than
// MaxSymbolDigits remain, the last MaxSymbolDigits are kept.
// The result matches ^[0-9]{0,10}$ for every input.
func SanitizeSymbol(s string) string {
	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			digits = append(digits, c)
		}
	}
	if len(digits) > MaxSymbolDigits {
		digits = digits[len(digits)-MaxSymbolDigits:]
	}
	return string(digits)
}

// SanitizeMessage collapses every run of whitespace (including newlines) to
// a single space, trims the result and cuts it to MaxMessageLength
// characters. The field delimiter '*' is treated as whitespace. The result
// never contains '*', '\n' or '\r', never starts with a space and is at
// most MaxMessageLength runes long.
func SanitizeMessage(s string) string {
	s = strings.ReplaceAll(s, Delimiter, " ")
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= MaxMessageLength {
		return s
	}
	return string([]rune(s)[:MaxMessageLength])
}

// NormalizeAccount strips whitespace from an IBAN and upper-cases it.
func NormalizeAccount(iban string) string {
	return strings.ToUpper(strings.Join(strings.Fields(iban), ""))
}
