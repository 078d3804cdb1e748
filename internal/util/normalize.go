package util

import (
	"net/mail"
	"strings"
)

// NormalizeEmail extracts and normalizes an address used as a user key.
// - Accepts bare addresses or RFC 5322 values like "Name <User@Example.COM>"
// - Lowercases the whole address
// - Keeps +tags: they identify distinct sender mailboxes for outreach
// Returns empty string if parsing fails or the address is missing.
func NormalizeEmail(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr == nil {
		// Some values may be a list; take the first parseable entry.
		for _, p := range strings.Split(value, ",") {
			a, e := mail.ParseAddress(strings.TrimSpace(p))
			if e == nil && a != nil {
				addr = a
				break
			}
		}
		if addr == nil {
			return ""
		}
	}

	email := strings.ToLower(strings.TrimSpace(addr.Address))
	if at := strings.LastIndexByte(email, '@'); at <= 0 || at == len(email)-1 {
		return ""
	}
	return email
}
