package quarry

import (
	"fmt"
	"time"
)

// Tree is a declarative registry description, independent of its source format.
type Tree struct {
	BaseURL   string
	Defaults  TreeDefaults
	Endpoints []EndpointBlock
}

// TreeDefaults holds values used by endpoints that leave them unset.
// URI and Headers become the registry's base URI and base headers.
type TreeDefaults struct {
	Method    Method
	URI       string
	Headers   map[string]string
	Normalize *bool
	Timeout   time.Duration
}

// EndpointBlock is one named endpoint of a Tree. A zero Method or nil
// Normalize falls back to the tree defaults.
type EndpointBlock struct {
	Name      string
	Method    Method
	URI       string
	Headers   map[string]string
	Body      string
	Params    Params
	Defaults  Placeholders
	Normalize *bool
}

// Load builds a registry from t. Unset endpoint values fall back to the tree
// defaults and then to GET with normalization enabled. Options are applied
// after the tree, so they override it.
func Load(t Tree, opts ...Option) (*Quarry, error) {
	base := []Option{
		WithBaseURI(t.Defaults.URI),
		WithBaseHeaders(t.Defaults.Headers),
		WithNormalize(boolOr(t.Defaults.Normalize, true)),
		WithTimeout(t.Defaults.Timeout),
	}
	q := New(t.BaseURL, append(base, opts...)...)

	defMethod := t.Defaults.Method
	if !defMethod.Valid() {
		defMethod = MethodGet
	}
	for i, ep := range t.Endpoints {
		if ep.Name == "" {
			return nil, fmt.Errorf("endpoint #%d: missing name", i+1)
		}
		method := ep.Method
		if method == 0 {
			method = defMethod
		}
		normalize := boolOr(ep.Normalize, boolOr(t.Defaults.Normalize, true))
		m, err := NewMiner(Endpoint{
			Method:   method,
			URI:      ep.URI,
			Headers:  ep.Headers,
			Body:     ep.Body,
			Params:   ep.Params,
			Defaults: ep.Defaults,
		}, normalize)
		if err != nil {
			return nil, fmt.Errorf("endpoint %q: %w", ep.Name, err)
		}
		for _, w := range m.Warnings() {
			q.warnf("quarry: endpoint %q: %v", ep.Name, w)
		}
		q.AddMiner(ep.Name, m)
	}
	return q, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
