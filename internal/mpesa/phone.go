package mpesa

import (
	"fmt"
	"strings"
)

// NormalizePhone rewrites a subscriber number into the international format the
// gateway expects, e.g. 0712345678, +254712345678 and 712345678 all become
// 254712345678 for country code 254.
func NormalizePhone(phone, countryCode string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)

	switch {
	case digits == "":
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	case len(digits) == 9:
		digits = countryCode + digits
	case strings.HasPrefix(digits, "0"):
		digits = countryCode + strings.TrimPrefix(digits, "0")
	}

	if !strings.HasPrefix(digits, countryCode) || len(digits) != len(countryCode)+9 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	return digits, nil
}
