package client

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxTextLength is the longest input accepted, in characters.
const MaxTextLength = 5000

var (
	// ErrEmptyText is returned when nothing is left after sanitizing.
	ErrEmptyText = errors.New("text is required")
	// ErrTextTooLong is returned for inputs over MaxTextLength.
	ErrTextTooLong = fmt.Errorf("text exceeds %d characters", MaxTextLength)
)

// SanitizeText trims the input and strips control characters other than
// newline and tab.
func SanitizeText(text string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return "", ErrEmptyText
	}
	if utf8.RuneCountInString(cleaned) > MaxTextLength {
		return "", ErrTextTooLong
	}
	return cleaned, nil
}
