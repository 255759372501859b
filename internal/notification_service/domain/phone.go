package domain

import "strings"

// NormalizePhone canonicalizes a raw phone number, best effort.
//
// Everything except digits and a leading '+' is stripped. A bare 11-digit
// number starting with 8 is treated as a Russian national format and rewritten
// to +7...; one starting with 7 just gains the '+'. Anything else is
// returned as-is; normalization never fails.
//
// Two differently formatted inputs that normalize identically are the same
// destination for any later deduplication, so this runs at the point a phone
// first enters the system.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && b.Len() == 0 {
			b.WriteRune(r)
		}
	}
	phone := b.String()

	if !strings.HasPrefix(phone, "+") && len(phone) == 11 {
		switch phone[0] {
		case '8':
			return "+7" + phone[1:]
		case '7':
			return "+" + phone
		}
	}
	return phone
}
