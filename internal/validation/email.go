package validation

import (
	"errors"
	"net/mail"
	"strings"
)

var ErrInvalidEmail = errors.New("invalid email")

// Email returns the lower-cased bare address, rejecting display names and
// addresses without a dotted domain.
func Email(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" || len(input) > 254 {
		return "", ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(input)
	if err != nil || addr.Name != "" || addr.Address != input {
		return "", ErrInvalidEmail
	}

	at := strings.LastIndexByte(addr.Address, '@')
	domain := addr.Address[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}
