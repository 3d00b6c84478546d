// Package phone recognises UK phone numbers in free text and normalises them to
// the 11-digit national form.
package phone

import (
	"strings"
	"unicode"
)

const (
	countryCode       = "44"
	internationalDial = "00"
	trunkPrefix       = "0"
	significant       = 10
)

// Normalize reduces a raw match to its national form (e.g. 07123456789).
// It returns false rather than a truncated or ambiguous number.
func Normalize(raw string) (string, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	// national numbers start with the trunk prefix, so a leading 44 is
	// always the country code
	digits = strings.TrimPrefix(digits, internationalDial+countryCode)
	digits = strings.TrimPrefix(digits, countryCode)
	digits = strings.TrimPrefix(digits, trunkPrefix)

	if len(digits) != significant || digits[0] == '0' {
		return "", false
	}
	return trunkPrefix + digits, true
}

// Extract returns the first number found by the default rule table, or ""
func Extract(text string) string {
	return ExtractWith(rules, text)
}

// ExtractWith runs an ordered rule table over text. Every match of a rule is
// tried, in the order found, before moving on to the next rule.
func ExtractWith(table []PatternRule, text string) string {
	if strings.IndexFunc(text, unicode.IsDigit) < 0 {
		return ""
	}
	for _, r := range table {
		for _, match := range r.Pattern.FindAllString(text, -1) {
			if number, ok := Normalize(match); ok {
				return number
			}
		}
	}
	return ""
}
