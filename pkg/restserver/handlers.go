package restserver

import (
	"encoding/json"
	"fmt"

	"github.com/r9s-ai/quarry/pkg/quarry"
)

// Status answers every request with an empty body and the given status.
func Status(code int) HandlerFunc {
	return func(quarry.Request) quarry.Response {
		return quarry.Response{Status: code, Headers: map[string]string{}}
	}
}

// Text answers every request with a fixed plain-text body.
func Text(code int, body string) HandlerFunc {
	return Static(code, "text/plain; charset=utf-8", body)
}

// Static answers every request with a fixed body and content type.
func Static(code int, contentType, body string) HandlerFunc {
	return func(quarry.Request) quarry.Response {
		h := map[string]string{}
		if contentType != "" {
			h["Content-Type"] = contentType
		}
		return quarry.Response{Status: code, Headers: h, Body: body}
	}
}

// JSON answers every request with v encoded once at construction time.
func JSON(code int, v any) (HandlerFunc, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode json handler body: %w", err)
	}
	return Static(code, "application/json", string(b)), nil
}

// WithHeaders wraps h and adds headers the response does not already set.
func WithHeaders(h HandlerFunc, headers map[string]string) HandlerFunc {
	if len(headers) == 0 {
		return h
	}
	return func(req quarry.Request) quarry.Response {
		resp := h(req)
		out := make(map[string]string, len(resp.Headers)+len(headers))
		for k, v := range headers {
			out[k] = v
		}
		for k, v := range resp.Headers {
			out[k] = v
		}
		resp.Headers = out
		return resp
	}
}
