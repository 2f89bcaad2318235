package ledger

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	minAddressLength = 10
	minAddressTokens = 3
)

var addressCharsRegexp = regexp.MustCompile(`^[A-Za-z0-9 ,.\-]+$`)

// ValidateAddress checks a delivery address is at least 10 characters,
// has at least 3 whitespace-separated words and uses only letters,
// digits, spaces, commas, periods and hyphens.
func ValidateAddress(address string) error {
	a := strings.TrimSpace(address)
	if a == "" {
		return ErrMissingAddress
	}
	if len(a) < minAddressLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrInvalidAddress, minAddressLength)
	}
	if len(strings.Fields(a)) < minAddressTokens {
		return fmt.Errorf("%w: include house number, street and area", ErrInvalidAddress)
	}
	if !addressCharsRegexp.MatchString(a) {
		return fmt.Errorf("%w: only letters, numbers, spaces, commas, periods and hyphens are allowed", ErrInvalidAddress)
	}
	return nil
}

// resolveAddress prefers the address given with the request and falls
// back to the one on the profile.
func resolveAddress(requested, profile string) (string, error) {
	if a := strings.TrimSpace(requested); a != "" {
		return a, nil
	}
	if a := strings.TrimSpace(profile); a != "" {
		return a, nil
	}
	return "", ErrMissingAddress
}
