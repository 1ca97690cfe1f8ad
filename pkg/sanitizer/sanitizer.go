package sanitizer

import (
	"strings"
	"unicode"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

// TrimAndNormalize collapses internal whitespace runs to single spaces
// and trims the ends. Customer-entered strings (display names, notes)
// pass through this before persisting.
func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		} else {
			result.WriteRune(r)
			lastWasSpace = false
		}
	}
	return result.String()
}

func stripControl(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func SanitizeDisplayName(input string) string {
	p := Pipeline{stripControl, TrimAndNormalize}
	return p.Apply(input)
}

func SanitizeNotes(input string) string {
	p := Pipeline{stripControl, TrimAndNormalize}
	return p.Apply(input)
}

// SanitizeMembershipNumber keeps only the characters that appear on
// membership cards: letters, digits and dashes, uppercased.
func SanitizeMembershipNumber(input string) string {
	var result strings.Builder
	for _, r := range strings.TrimSpace(input) {
		switch {
		case unicode.IsLetter(r):
			result.WriteRune(unicode.ToUpper(r))
		case unicode.IsDigit(r) || r == '-':
			result.WriteRune(r)
		}
	}
	return result.String()
}
