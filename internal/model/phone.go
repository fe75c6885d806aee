package model

import "strings"

// NormalizePhone canonicalizes a stored phone into +E164. Russian inputs
// dominate the data: a leading 8 becomes 7 and a bare ten-digit number gets
// the 7 prefix. Full international numbers in + form pass through.
// Anything else is unusable and comes back nil.
func NormalizePhone(raw string) *string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	switch {
	case len(d) == 10:
		d = "7" + d
	case len(d) == 11 && d[0] == '8':
		d = "7" + d[1:]
	case len(d) == 11 && d[0] == '7':
	case strings.HasPrefix(strings.TrimSpace(raw), "+") && len(d) >= 11 && len(d) <= 15:
	default:
		return nil
	}
	normalized := "+" + d
	return &normalized
}
