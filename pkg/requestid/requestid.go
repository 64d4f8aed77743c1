package requestid

import (
	"strings"

	"github.com/google/uuid"
)

const DefaultHeaderKey = "X-Request-Id"

// ResolveHeaderKey returns the provided header key when non-empty,
// otherwise falls back to the default request id header key.
func ResolveHeaderKey(headerKey string) string {
	if v := strings.TrimSpace(headerKey); v != "" {
		return v
	}
	return DefaultHeaderKey
}

// Gen generates a random request id: 32 lowercase hex digits.
func Gen() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// FromHeader returns v when it is a usable inbound request id, otherwise a fresh one.
func FromHeader(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || len(v) > 128 || strings.ContainsAny(v, " \t\r\n") {
		return Gen()
	}
	return v
}
