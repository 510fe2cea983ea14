// Package phone canonicalizes human-entered phone numbers into a stable
// international form so records stored under one representation are
// retrievable under any equivalent one.
package phone

import (
	"fmt"
	"strings"
)

// fallbackMobilePrefix is prepended when an 8-digit remainder has to be
// repaired into a national mobile number during the last-resort fallback.
const fallbackMobilePrefix = "5"

// Number is the canonical representation of a phone number.
type Number struct {
	CallingCode    string
	NationalNumber string
	CountryID      string
	CountryLabel   string

	// LowConfidence marks numbers produced by the last-resort fallback
	// rather than a positive country match.
	LowConfidence bool
}

// E164 returns the canonical digits, calling code first, without a plus sign.
func (n Number) E164() string {
	return n.CallingCode + n.NationalNumber
}

// Canonicalize maps raw input to its canonical form. Matching is attempted
// in a fixed order, first match wins:
//
//  1. calling-code prefix with an exact national-length remainder
//  2. default-country pattern after stripping one trunk zero
//  3. every country's pattern, in table order, after stripping one trunk zero
//  4. fallback to the default country, repairing 8-digit remainders with a
//     mobile prefix and flagging the result low confidence
//
// Canonicalizing a canonical E164 string again is a no-op.
func Canonicalize(raw, defaultCountry string) (Number, error) {
	digits := stripNonDigits(raw)
	if digits == "" {
		return Number{}, fmt.Errorf("no digits in %q", raw)
	}

	def, ok := countryByID(strings.ToUpper(defaultCountry))
	if !ok {
		return Number{}, fmt.Errorf("unknown default country %q", defaultCountry)
	}

	for _, c := range countries {
		rest, found := strings.CutPrefix(digits, c.CallingCode)
		if found && len(rest) == c.NationalLen {
			return number(c, rest, false), nil
		}
	}

	trimmed := strings.TrimPrefix(digits, "0")
	if def.Pattern.MatchString(trimmed) {
		return number(def, trimmed, false), nil
	}

	for _, c := range countries {
		if c.Pattern.MatchString(trimmed) {
			return number(c, trimmed, false), nil
		}
	}

	national := trimmed
	if len(national) == 8 {
		national = fallbackMobilePrefix + national
	}
	return number(def, national, true), nil
}

func number(c Country, national string, lowConfidence bool) Number {
	return Number{
		CallingCode:    c.CallingCode,
		NationalNumber: national,
		CountryID:      c.ID,
		CountryLabel:   c.Label,
		LowConfidence:  lowConfidence,
	}
}

func stripNonDigits(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
