package domain

import (
	"net/mail"
	"strings"
)

// NormalizeEmail lower-cases the bare address part of raw. A display name or
// anything mail.ParseAddress would rewrite is rejected.
func NormalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}
