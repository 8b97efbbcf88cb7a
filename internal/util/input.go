package util

import (
	"errors"
	"html"
	"strings"
)

// DefaultCountryCode is the dialing prefix used when rendering masked numbers.
const DefaultCountryCode = "90"

var ErrInvalidPhone = errors.New("invalid mobile phone number")

// NormalizePhone converts the accepted GSM spellings into the domestic
// 05XXXXXXXXX form. Separators (space, dash, dot, parentheses) are ignored.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", ErrInvalidPhone
		}
	}

	digits := b.String()
	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "905"):
		digits = "0" + digits[2:]
	case len(digits) == 10 && digits[0] == '5':
		digits = "0" + digits
	}

	if len(digits) != 11 || !strings.HasPrefix(digits, "05") {
		return "", ErrInvalidPhone
	}
	return digits, nil
}

// IsNationalID reports whether s is an 11-digit national ID with a non-zero lead digit.
func IsNationalID(s string) bool {
	if len(s) != 11 || s[0] == '0' {
		return false
	}
	return isDigits(s)
}

// IsOtpCode reports whether s is exactly six ASCII digits.
func IsOtpCode(s string) bool {
	return len(s) == 6 && isDigits(s)
}

// MaskPhone renders a normalized phone as "+<cc> <area> *** ** <last two>".
// The result is for display only.
func MaskPhone(phone, countryCode string) string {
	if len(phone) != 11 || phone[0] != '0' || !isDigits(phone) {
		return "***"
	}
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	national := phone[1:]
	return "+" + countryCode + " " + national[:3] + " *** ** " + national[len(national)-2:]
}

// SanitizeInput trims and HTML-escapes free text before it is forwarded upstream.
func SanitizeInput(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

// ContainsSuspicious flags markup or template fragments in free text.
func ContainsSuspicious(s string) bool {
	lower := strings.ToLower(s)
	for _, c := range []string{"<", ">", "${", "{{", "script", "onerror", "onload"} {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
