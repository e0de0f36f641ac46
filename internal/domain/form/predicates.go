// Package form contains the field predicates and input forms of the client.
package form

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxFullNameLength is measured in runes after NFC normalization
	MaxFullNameLength = 50
	// MinPasswordLength is measured in runes
	MinPasswordLength = 6
)

var (
	phonePattern      = regexp.MustCompile(`^[0-9]{10}$`)
	nationalIDPattern = regexp.MustCompile(`^[0-9]{12}$`)
	fullNamePattern   = regexp.MustCompile(`^[\p{L}\p{M} ]+$`)
)

// IsPhone reports whether s is exactly 10 digits
func IsPhone(s string) bool {
	return phonePattern.MatchString(s)
}

// IsNationalID reports whether s is exactly 12 digits
func IsNationalID(s string) bool {
	return nationalIDPattern.MatchString(s)
}

// IsFullName reports whether s is a non-blank name of letters and spaces,
// at most MaxFullNameLength runes long.
func IsFullName(s string) bool {
	s = NormalizeName(s)
	if s == "" || utf8.RuneCountInString(s) > MaxFullNameLength {
		return false
	}
	return fullNamePattern.MatchString(s)
}

// NormalizeName trims s and converts it to NFC, so decomposed Vietnamese
// diacritics count as one rune each.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// IsPassword reports whether s has at least MinPasswordLength characters
func IsPassword(s string) bool {
	return utf8.RuneCountInString(s) >= MinPasswordLength
}

// IsDateRange reports whether expiry is strictly after issue.
// A zero date on either side fails.
func IsDateRange(issue, expiry time.Time) bool {
	if issue.IsZero() || expiry.IsZero() {
		return false
	}
	return expiry.After(issue)
}
