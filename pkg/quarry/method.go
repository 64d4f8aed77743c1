package quarry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidMethod is returned when a method name is not one of the supported HTTP methods.
var ErrInvalidMethod = errors.New("invalid http method")

// Method is an HTTP method. The zero value is not a valid method.
type Method int

const (
	MethodGet Method = iota + 1
	MethodPost
	MethodPut
	MethodDelete
	MethodPatch
	MethodHead
)

var methodNames = map[Method]string{
	MethodGet:    "GET",
	MethodPost:   "POST",
	MethodPut:    "PUT",
	MethodDelete: "DELETE",
	MethodPatch:  "PATCH",
	MethodHead:   "HEAD",
}

var methodsByName = func() map[string]Method {
	out := make(map[string]Method, len(methodNames))
	for m, name := range methodNames {
		out[name] = m
	}
	return out
}()

// ParseMethod maps a case-insensitive method name to a Method.
func ParseMethod(name string) (Method, error) {
	s := strings.ToUpper(strings.TrimSpace(name))
	if m, ok := methodsByName[s]; ok {
		return m, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMethod, name)
}

func (m Method) String() string {
	if s, ok := methodNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// Valid reports whether m is one of the supported methods.
func (m Method) Valid() bool {
	_, ok := methodNames[m]
	return ok
}

// Methods returns every supported method in declaration order.
func Methods() []Method {
	out := make([]Method, 0, len(methodNames))
	for m := range methodNames {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
