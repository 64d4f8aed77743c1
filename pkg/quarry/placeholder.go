package quarry

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Placeholders binds template tokens to values.
// Named["id"] replaces "@{id}"; Positional[0] replaces "${1}".
type Placeholders struct {
	Named      map[string]string
	Positional []string
}

// IsZero reports whether p binds nothing.
func (p Placeholders) IsZero() bool {
	return len(p.Named) == 0 && len(p.Positional) == 0
}

func (p Placeholders) clone() Placeholders {
	out := Placeholders{}
	if p.Named != nil {
		out.Named = cloneHeaders(p.Named)
	}
	if p.Positional != nil {
		out.Positional = append([]string(nil), p.Positional...)
	}
	return out
}

// NamedToken returns the token replaced by a named binding.
func NamedToken(key string) string {
	return "@{" + key + "}"
}

// PositionalToken returns the token replaced by the positional binding at 1-based index n.
func PositionalToken(n int) string {
	return "${" + strconv.Itoa(n) + "}"
}

// Resolve substitutes tokens in text. Passes run in order: named overrides,
// positional overrides, named defaults, positional defaults. Each pass replaces
// every occurrence in the current text, so an override hides the default for
// the same token. Tokens without a binding are left in place.
func Resolve(text string, overrides, defaults Placeholders) string {
	if !strings.Contains(text, "@{") && !strings.Contains(text, "${") {
		return text
	}
	text = replaceNamed(text, overrides.Named)
	text = replacePositional(text, overrides.Positional)
	text = replaceNamed(text, defaults.Named)
	text = replacePositional(text, defaults.Positional)
	return text
}

func replaceNamed(text string, named map[string]string) string {
	if len(named) == 0 {
		return text
	}
	keys := make([]string, 0, len(named))
	for k := range named {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		text = strings.ReplaceAll(text, NamedToken(k), named[k])
	}
	return text
}

func replacePositional(text string, positional []string) string {
	for i, v := range positional {
		text = strings.ReplaceAll(text, PositionalToken(i+1), v)
	}
	return text
}

var tokenPattern = regexp.MustCompile(`@\{[^{}]*\}|\$\{[0-9]+\}`)

// Tokens lists the distinct placeholder tokens still present in text, in order of first appearance.
func Tokens(text string) []string {
	found := tokenPattern.FindAllString(text, -1)
	if len(found) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(found))
	out := make([]string, 0, len(found))
	for _, tok := range found {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
