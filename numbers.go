package main

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

var ErrInvalidNumber = errors.New("invalid phone number")

// FormatNumber strips everything but digits (including a leading '+').
// Numbers longer than localLength are taken as international; numbers of
// exactly localLength get countryCode prefixed. Anything shorter is rejected.
func FormatNumber(raw, countryCode string, localLength int) (string, error) {
	digits := digitsOnly(strings.Split(raw, "/")[0])
	switch {
	case len(digits) > localLength:
		return digits, nil
	case len(digits) == localLength:
		return countryCode + digits, nil
	}
	return "", fmt.Errorf("%w: %q has %d digits", ErrInvalidNumber, raw, len(digits))
}

// NormalizeNumbers formats each entry, keeping input order. Blank entries are
// skipped; malformed ones are returned separately.
func NormalizeNumbers(raw []string, countryCode string, localLength int) (valid, rejected []string) {
	for _, n := range raw {
		if strings.TrimSpace(n) == "" {
			continue
		}
		formatted, err := FormatNumber(n, countryCode, localLength)
		if err != nil {
			rejected = append(rejected, strings.TrimSpace(n))
			continue
		}
		valid = append(valid, formatted)
	}
	return valid, rejected
}

// SplitNumbers accepts a comma, semicolon or newline separated list.
func SplitNumbers(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '\r'
	})
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r < unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
