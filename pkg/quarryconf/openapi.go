package quarryconf

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/r9s-ai/quarry/pkg/quarry"
)

var (
	pathParamPattern = regexp.MustCompile(`\{([^{}]+)\}`)
	aliasUnsafe      = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

// ParseOpenAPI converts an OpenAPI 3 document into a tree with one endpoint per
// operation. Path parameters become named placeholders. Required query and
// header parameters without an example become placeholders too; parameters
// with an example use it as the value.
func ParseOpenAPI(content []byte) (quarry.Tree, []Warning, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(content)
	if err != nil {
		return quarry.Tree{}, nil, fmt.Errorf("parse openapi document: %w", err)
	}
	if err := doc.Validate(context.Background(), openapi3.DisableExamplesValidation()); err != nil {
		return quarry.Tree{}, nil, fmt.Errorf("validate openapi document: %w", err)
	}

	tree := quarry.Tree{}
	if len(doc.Servers) > 0 && doc.Servers[0] != nil {
		tree.BaseURL = strings.TrimSpace(doc.Servers[0].URL)
	}
	if doc.Paths == nil {
		return tree, nil, nil
	}

	var warnings []Warning
	paths := doc.Paths.Map()
	keys := make([]string, 0, len(paths))
	for k := range paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := map[string]bool{}
	for _, path := range keys {
		item := paths[path]
		ops := item.Operations()
		methods := make([]string, 0, len(ops))
		for m := range ops {
			methods = append(methods, m)
		}
		sort.Strings(methods)

		for _, name := range methods {
			op := ops[name]
			method, err := quarry.ParseMethod(name)
			if err != nil {
				warnings = append(warnings, Warning{Message: fmt.Sprintf("skipping %s %s: %v", strings.ToUpper(name), path, err)})
				continue
			}
			ep := operationEndpoint(method, path, item.Parameters, op)
			if seen[ep.Name] {
				warnings = append(warnings, Warning{Endpoint: ep.Name, Message: "duplicate operation id, last definition wins"})
			}
			seen[ep.Name] = true
			tree.Endpoints = append(tree.Endpoints, ep)
		}
	}
	return tree, warnings, nil
}

func operationEndpoint(method quarry.Method, path string, shared openapi3.Parameters, op *openapi3.Operation) quarry.EndpointBlock {
	ep := quarry.EndpointBlock{
		Name:   operationAlias(method, path, op),
		Method: method,
		URI:    pathParamPattern.ReplaceAllString(path, quarry.NamedToken("$1")),
	}

	params := make(openapi3.Parameters, 0, len(shared)+len(op.Parameters))
	params = append(params, shared...)
	params = append(params, op.Parameters...)
	for _, ref := range params {
		if ref == nil || ref.Value == nil {
			continue
		}
		p := ref.Value
		example, hasExample := parameterExample(p)
		switch p.In {
		case openapi3.ParameterInPath:
			if hasExample {
				if ep.Defaults.Named == nil {
					ep.Defaults.Named = map[string]string{}
				}
				ep.Defaults.Named[p.Name] = example
			}
		case openapi3.ParameterInQuery:
			if v, ok := parameterValue(p, example, hasExample); ok {
				ep.Params = append(ep.Params, quarry.Param{Key: p.Name, Value: v})
			}
		case openapi3.ParameterInHeader:
			if v, ok := parameterValue(p, example, hasExample); ok {
				if ep.Headers == nil {
					ep.Headers = map[string]string{}
				}
				ep.Headers[p.Name] = v
			}
		}
	}

	if body, ok := requestBodyExample(op); ok {
		ep.Body = body
		if ep.Headers == nil {
			ep.Headers = map[string]string{}
		}
		ep.Headers["Content-Type"] = "application/json"
	}
	return ep
}

func operationAlias(method quarry.Method, path string, op *openapi3.Operation) string {
	if op != nil {
		if id := strings.TrimSpace(op.OperationID); id != "" {
			return id
		}
	}
	slug := strings.Trim(aliasUnsafe.ReplaceAllString(path, "_"), "_")
	if slug == "" {
		slug = "root"
	}
	return strings.ToLower(method.String()) + "_" + slug
}

func parameterValue(p *openapi3.Parameter, example string, hasExample bool) (string, bool) {
	if hasExample {
		return example, true
	}
	if p.Required {
		return quarry.NamedToken(p.Name), true
	}
	return "", false
}

func parameterExample(p *openapi3.Parameter) (string, bool) {
	if p.Example != nil {
		return scalarString(p.Example), true
	}
	for _, ex := range p.Examples {
		if ex != nil && ex.Value != nil && ex.Value.Value != nil {
			return scalarString(ex.Value.Value), true
		}
	}
	if p.Schema != nil && p.Schema.Value != nil && p.Schema.Value.Default != nil {
		return scalarString(p.Schema.Value.Default), true
	}
	return "", false
}

func requestBodyExample(op *openapi3.Operation) (string, bool) {
	if op == nil || op.RequestBody == nil || op.RequestBody.Value == nil {
		return "", false
	}
	mt := op.RequestBody.Value.Content.Get("application/json")
	if mt == nil {
		return "", false
	}
	ex := mt.Example
	if ex == nil && mt.Schema != nil && mt.Schema.Value != nil {
		ex = mt.Schema.Value.Example
	}
	if ex == nil {
		return "", false
	}
	b, err := json.Marshal(ex)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", t), "0"), ".")
	default:
		return fmt.Sprint(t)
	}
}
