// Package tags normalises free-form tag input into a canonical tag set.
package tags

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// MaxLength is the longest tag accepted, in runes.
const MaxLength = 40

// TooLongError reports a tag exceeding MaxLength after normalisation.
type TooLongError struct {
	Tag string
}

func (e *TooLongError) Error() string {
	return fmt.Sprintf("tag %q exceeds %d characters", e.Tag, MaxLength)
}

// InvalidError reports a tag that is not valid UTF-8.
type InvalidError struct {
	Tag string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("tag %q is not valid UTF-8", e.Tag)
}

// Parse splits raw on commas, semicolons and newlines and normalises the pieces.
func Parse(raw string) ([]string, error) {
	return Normalize(Split(raw))
}

// Split breaks raw on commas, semicolons and newlines without normalising.
func Split(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '\r'
	})
}

// Normalize canonicalises each tag, drops empties and removes duplicates,
// keeping the first occurrence order.
func Normalize(values []string) ([]string, error) {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if !utf8.ValidString(value) {
			return nil, &InvalidError{Tag: value}
		}
		tag := Canonical(value)
		if tag == "" {
			continue
		}
		if utf8.RuneCountInString(tag) > MaxLength {
			return nil, &TooLongError{Tag: tag}
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out, nil
}

// Canonical returns the NFKC-normalised, lowercased form of a single tag with
// inner whitespace runs collapsed to a hyphen.
func Canonical(value string) string {
	value = cases.Lower(language.Und).String(norm.NFKC.String(value))
	fields := strings.FieldsFunc(value, unicode.IsSpace)
	return strings.Join(fields, "-")
}
