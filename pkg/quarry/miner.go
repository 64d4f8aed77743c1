package quarry

import (
	"fmt"
	"strings"
)

// Endpoint describes a reusable request shape before compilation.
type Endpoint struct {
	Method   Method
	URI      string
	Headers  map[string]string
	Body     string
	Params   Params
	Defaults Placeholders
}

// Miner is a compiled, immutable request template.
// All methods are safe for concurrent use.
type Miner struct {
	method   Method
	uri      string
	headers  map[string]string
	body     string
	defaults Placeholders
	warnings []error
}

// NewMiner compiles def. The compiled URI is def.URI without a trailing "/"
// followed by "?k=v&..." for def.Params in declaration order; with normalize
// set, separator runs in its path are collapsed.
//
// An invalid method is an error. An ambiguous scheme is not: the miner keeps
// the un-normalized URI and reports the *SchemeError through Warnings.
func NewMiner(def Endpoint, normalize bool) (*Miner, error) {
	if !def.Method.Valid() {
		return nil, fmt.Errorf("compile miner: %w: %s", ErrInvalidMethod, def.Method)
	}
	uri := strings.TrimSuffix(EnsureTrailingSeparator(def.URI), "/")
	if q := def.Params.Encode(); q != "" {
		uri += "?" + q
	}

	m := &Miner{
		method:   def.Method,
		headers:  cloneHeaders(def.Headers),
		body:     def.Body,
		defaults: def.Defaults.clone(),
	}
	if normalize {
		out, err := NormalizePath(uri)
		if err != nil {
			m.warnings = append(m.warnings, err)
		}
		uri = out
	}
	m.uri = uri
	return m, nil
}

// Method returns the HTTP method of requests produced by m.
func (m *Miner) Method() Method { return m.method }

// URI returns the compiled URI template.
func (m *Miner) URI() string { return m.uri }

// Body returns the body template.
func (m *Miner) Body() string { return m.body }

// Headers returns a copy of the header templates.
func (m *Miner) Headers() map[string]string { return cloneHeaders(m.headers) }

// Defaults returns a copy of the default placeholder bindings.
func (m *Miner) Defaults() Placeholders { return m.defaults.clone() }

// Warnings returns the non-fatal diagnostics collected at compile time.
func (m *Miner) Warnings() []error { return append([]error(nil), m.warnings...) }

// Render instantiates the template. Bindings in p take precedence over the
// miner's defaults. The returned Request shares no state with m.
func (m *Miner) Render(p Placeholders) Request {
	headers := make(map[string]string, len(m.headers))
	for k, v := range m.headers {
		headers[k] = Resolve(v, p, m.defaults)
	}
	return Request{
		Method:  m.method,
		URI:     Resolve(m.uri, p, m.defaults),
		Headers: headers,
		Body:    Resolve(m.body, p, m.defaults),
	}
}
