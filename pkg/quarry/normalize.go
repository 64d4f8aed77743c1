package quarry

import (
	"fmt"
	"strings"
)

const schemeSeparator = "://"

// SchemeError reports text that contains more than one "://" separator.
// Normalization leaves such text untouched.
type SchemeError struct {
	Text  string
	Count int
}

func (e *SchemeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("ambiguous scheme: %d %q separators in %q", e.Count, schemeSeparator, e.Text)
}

// Normalize collapses every run of "/" into a single "/" while keeping the
// scheme separator intact. Text with more than one "://" is returned as-is
// together with a *SchemeError.
func Normalize(text string) (string, error) {
	n := strings.Count(text, schemeSeparator)
	if n > 1 {
		return text, &SchemeError{Text: text, Count: n}
	}
	if n == 0 {
		return collapseSeparators(text), nil
	}
	i := strings.Index(text, schemeSeparator)
	prefix := text[:i+len(schemeSeparator)]
	return prefix + collapseSeparators(text[i+len(schemeSeparator):]), nil
}

// NormalizePath normalizes only the part of text before the first "?".
// The query string is kept verbatim.
func NormalizePath(text string) (string, error) {
	path, query, hasQuery := strings.Cut(text, "?")
	out, err := Normalize(path)
	if err != nil {
		return text, err
	}
	if hasQuery {
		return out + "?" + query, nil
	}
	return out, nil
}

// EnsureTrailingSeparator returns text ending in exactly one "/".
// The empty string becomes "/".
func EnsureTrailingSeparator(text string) string {
	return strings.TrimRight(text, "/") + "/"
}

func collapseSeparators(s string) string {
	for strings.Contains(s, "//") {
		s = strings.ReplaceAll(s, "//", "/")
	}
	return s
}
