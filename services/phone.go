package services

import (
	"strings"
)

// PhoneNormalizer maps a phone number as typed by a person to the canonical
// form stored in the member directory.
type PhoneNormalizer func(raw string) string

// NormalizePhone drops every character except digits and a leading '+'.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)

	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(raw, "+") {
		return "+" + digits
	}
	return digits
}

// CountryCodeNormalizer rewrites international numbers for one calling code
// into the local trunk form, so "+233 24 123 4567", "00233241234567" and
// "0241234567" all match. Other numbers are left as NormalizePhone returns them.
func CountryCodeNormalizer(callingCode string) PhoneNormalizer {
	callingCode = strings.TrimPrefix(strings.TrimSpace(callingCode), "+")
	if callingCode == "" {
		return NormalizePhone
	}

	local := func(rest string) string {
		return "0" + strings.TrimLeft(rest, "0")
	}

	return func(raw string) string {
		n := NormalizePhone(raw)
		switch {
		case strings.HasPrefix(n, "+"+callingCode):
			return local(n[1+len(callingCode):])
		case strings.HasPrefix(n, "00"+callingCode):
			return local(n[2+len(callingCode):])
		case strings.HasPrefix(n, callingCode) && len(n) >= len(callingCode)+9:
			return local(n[len(callingCode):])
		}
		return n
	}
}
