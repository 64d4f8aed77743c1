package quarryconf

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
)

const (
	syntaxPrefix = "quarry/"

	// CurrentSyntax is written by tools that generate native documents.
	CurrentSyntax = "quarry/0.1"
)

var supportedSyntax = version.MustConstraints(version.NewConstraint(">= 0.1, < 1.0"))

// CheckSyntax validates a `syntax` value. An empty value is accepted.
func CheckSyntax(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if !strings.HasPrefix(s, syntaxPrefix) {
		return fmt.Errorf("unsupported syntax %q: expected %q prefix", s, syntaxPrefix)
	}
	v, err := version.NewVersion(strings.TrimPrefix(s, syntaxPrefix))
	if err != nil {
		return fmt.Errorf("unsupported syntax %q: %w", s, err)
	}
	if !supportedSyntax.Check(v) {
		return fmt.Errorf("unsupported syntax %q: version must satisfy %s", s, supportedSyntax)
	}
	return nil
}
