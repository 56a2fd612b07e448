package telephony

import (
	"strings"

	"github.com/ttacon/libphonenumber"
)

// NormalizeE164 keeps numbers that already start with '+'. Anything else is
// taken as US/Canada: non-digits are stripped and "+1" is prefixed.
// An input with no digits returns "".
func NormalizeE164(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "+") {
		if len(s) == 1 {
			return ""
		}
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "+1" + b.String()
}

// AreaCode returns the 3-digit NANP area code of an E.164 number, or "" when
// the number is not a +1 number libphonenumber can parse.
func AreaCode(e164 string) string {
	if e164 == "" {
		return ""
	}
	num, err := libphonenumber.Parse(e164, "US")
	if err != nil || num.GetCountryCode() != 1 {
		return ""
	}
	nsn := libphonenumber.GetNationalSignificantNumber(num)
	if len(nsn) != 10 {
		return ""
	}
	return nsn[:3]
}

// IsDialable reports whether libphonenumber considers the number valid.
func IsDialable(e164 string) bool {
	num, err := libphonenumber.Parse(e164, "US")
	if err != nil {
		return false
	}
	return libphonenumber.IsValidNumber(num)
}
