package quarryconf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/r9s-ai/quarry/pkg/quarry"
)

// Format names a source format.
type Format string

const (
	FormatNative  Format = "native"
	FormatOpenAPI Format = "openapi"
)

// ParseFormat maps a config value to a Format. Empty means native.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(FormatNative):
		return FormatNative, nil
	case string(FormatOpenAPI):
		return FormatOpenAPI, nil
	default:
		return "", fmt.Errorf("unknown source format %q", s)
	}
}

type document struct {
	Syntax    string          `yaml:"syntax"`
	BaseURL   string          `yaml:"base_url"`
	Defaults  defaultsBlock   `yaml:"defaults"`
	Endpoints []endpointBlock `yaml:"endpoints"`
}

type defaultsBlock struct {
	Method    string            `yaml:"method"`
	URI       string            `yaml:"uri"`
	Headers   map[string]string `yaml:"headers"`
	Normalize *bool             `yaml:"normalize"`
	TimeoutMs int               `yaml:"timeout_ms"`
}

type endpointBlock struct {
	Name       string            `yaml:"name"`
	Method     string            `yaml:"method"`
	URI        string            `yaml:"uri"`
	Headers    map[string]string `yaml:"headers"`
	Body       string            `yaml:"body"`
	Params     orderedParams     `yaml:"params"`
	Named      map[string]string `yaml:"named"`
	Positional []string          `yaml:"positional"`
	Normalize  *bool             `yaml:"normalize"`

	line int
}

func (e *endpointBlock) UnmarshalYAML(value *yaml.Node) error {
	type raw endpointBlock
	var r raw
	if err := value.Decode(&r); err != nil {
		return err
	}
	*e = endpointBlock(r)
	e.line = value.Line
	return nil
}

// orderedParams decodes a YAML mapping into params, keeping key order.
type orderedParams quarry.Params

func (p *orderedParams) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: params must be a mapping", value.Line)
	}
	out := make(orderedParams, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		k, v := value.Content[i], value.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: param %q must be a scalar", v.Line, k.Value)
		}
		out = append(out, quarry.Param{Key: k.Value, Value: v.Value})
	}
	*p = out
	return nil
}

// LoadFile reads path and parses it in the given format.
func LoadFile(path string, format Format) (quarry.Tree, []Warning, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return quarry.Tree{}, nil, errors.New("endpoints file path is empty")
	}
	// #nosec G304 -- endpoints file comes from trusted config.
	b, err := os.ReadFile(p)
	if err != nil {
		return quarry.Tree{}, nil, fmt.Errorf("read endpoints file %q: %w", p, err)
	}
	switch format {
	case FormatOpenAPI:
		t, warnings, err := ParseOpenAPI(b)
		if err != nil {
			return quarry.Tree{}, nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		for i := range warnings {
			warnings[i].File = p
		}
		return t, warnings, nil
	default:
		return Parse(p, b)
	}
}

// Parse decodes a native document. path is only used in diagnostics.
func Parse(path string, content []byte) (quarry.Tree, []Warning, error) {
	var doc document
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return quarry.Tree{}, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := CheckSyntax(doc.Syntax); err != nil {
		return quarry.Tree{}, nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var warnings []Warning
	if strings.TrimSpace(doc.Syntax) == "" {
		warnings = append(warnings, Warning{File: path, Message: fmt.Sprintf("missing syntax line, assuming %q", CurrentSyntax)})
	}

	tree := quarry.Tree{
		BaseURL: strings.TrimSpace(doc.BaseURL),
		Defaults: quarry.TreeDefaults{
			URI:       doc.Defaults.URI,
			Headers:   doc.Defaults.Headers,
			Normalize: doc.Defaults.Normalize,
		},
	}
	if doc.Defaults.TimeoutMs < 0 {
		return quarry.Tree{}, nil, fmt.Errorf("parse %s: defaults.timeout_ms must be >= 0", path)
	}
	tree.Defaults.Timeout = time.Duration(doc.Defaults.TimeoutMs) * time.Millisecond
	if strings.TrimSpace(doc.Defaults.Method) != "" {
		m, err := quarry.ParseMethod(doc.Defaults.Method)
		if err != nil {
			return quarry.Tree{}, nil, fmt.Errorf("parse %s: defaults: %w", path, err)
		}
		tree.Defaults.Method = m
	}

	seen := make(map[string]int, len(doc.Endpoints))
	for _, ep := range doc.Endpoints {
		name := strings.TrimSpace(ep.Name)
		if name == "" {
			return quarry.Tree{}, nil, fmt.Errorf("parse %s:%d: endpoint without name", path, ep.line)
		}
		block := quarry.EndpointBlock{
			Name:      name,
			URI:       ep.URI,
			Headers:   ep.Headers,
			Body:      ep.Body,
			Params:    quarry.Params(ep.Params),
			Defaults:  quarry.Placeholders{Named: ep.Named, Positional: ep.Positional},
			Normalize: ep.Normalize,
		}
		if strings.TrimSpace(ep.Method) != "" {
			m, err := quarry.ParseMethod(ep.Method)
			if err != nil {
				return quarry.Tree{}, nil, fmt.Errorf("parse %s:%d: endpoint %q: %w", path, ep.line, name, err)
			}
			block.Method = m
		}
		if prev, ok := seen[name]; ok {
			warnings = append(warnings, Warning{
				File:     path,
				Line:     ep.line,
				Endpoint: name,
				Message:  fmt.Sprintf("duplicate name (first defined at line %d), last definition wins", prev),
			})
		}
		seen[name] = ep.line
		tree.Endpoints = append(tree.Endpoints, block)
	}
	return tree, warnings, nil
}
