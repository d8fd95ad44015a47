package capture

import "strings"

// DefaultCountryCode is the calling code applied to national numbers.
const DefaultCountryCode = "225"

// NormalizePhone returns the canonical "+<digits>" form of raw, or "" when raw has no digits.
//
// Rules, in order: keep digits only; drop a "00" international prefix when it is followed by the
// country code or by more than 10 digits (an international number); a number that already starts with the country code followed by 8 to 10 digits is kept;
// a bare 8 to 10 digit number is national and gets the country code (its leading 0 is part of
// the national number); a longer number with a leading 0 trunk prefix has it replaced by the
// country code; anything else is kept as dialled.
// NormalizePhone(NormalizePhone(x)) == NormalizePhone(x).
func NormalizePhone(raw, countryCode string) string {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if d == "" {
		return ""
	}
	for strings.HasPrefix(d, "00") && (strings.HasPrefix(d[2:], countryCode) || len(d)-2 > 10) {
		d = d[2:]
	}
	switch {
	case strings.HasPrefix(d, countryCode) && nationalLength(len(d)-len(countryCode)):
	case nationalLength(len(d)):
		d = countryCode + d
	case len(d) > 10 && d[0] == '0':
		d = countryCode + d[1:]
	}
	return "+" + d
}

func nationalLength(n int) bool {
	return n >= 8 && n <= 10
}
