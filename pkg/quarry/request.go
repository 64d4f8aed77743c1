package quarry

import (
	"encoding/json"
	"errors"
	"strings"
)

// Param is a single query parameter.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered list of query parameters. Encoding keeps declaration order.
type Params []Param

// Get returns the value of the first param named key.
func (p Params) Get(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Encode renders the params as "k=v&k2=v2". Keys and values are written as-is.
func (p Params) Encode() string {
	if len(p) == 0 {
		return ""
	}
	var b strings.Builder
	for i, kv := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(kv.Key)
		b.WriteByte('=')
		b.WriteString(kv.Value)
	}
	return b.String()
}

// Request describes an outbound or inbound HTTP call.
// It is a plain value; mutating a Request never affects the Miner or Quarry that produced it.
type Request struct {
	Method  Method
	URI     string
	Headers map[string]string
	Body    string
	Params  Params
}

// Param returns the value of the query parameter named key.
func (r Request) Param(key string) (string, bool) {
	return r.Params.Get(key)
}

// DecodeJSON unmarshals the request body into v.
func (r Request) DecodeJSON(v any) error {
	if strings.TrimSpace(r.Body) == "" {
		return errors.New("request body is empty")
	}
	return json.Unmarshal([]byte(r.Body), v)
}

func cloneHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}
