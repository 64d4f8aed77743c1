package quarry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/net/http/httpguts"

	"github.com/r9s-ai/quarry/pkg/httpclient"
)

// Transport executes a fully assembled Request.
//
// Network and timeout failures are reported in Response.Err. The error return
// is reserved for requests that cannot be sent at all, such as an unparsable
// URL or an invalid header.
type Transport interface {
	RoundTrip(ctx context.Context, req Request, timeout time.Duration) (Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req Request, timeout time.Duration) (Response, error)

func (f TransportFunc) RoundTrip(ctx context.Context, req Request, timeout time.Duration) (Response, error) {
	return f(ctx, req, timeout)
}

// HTTPTransport sends requests with an httpclient.HTTPDoer.
type HTTPTransport struct {
	Doer httpclient.HTTPDoer
}

// NewHTTPTransport returns a transport using doer, or a non-pooled client when doer is nil.
func NewHTTPTransport(doer httpclient.HTTPDoer) *HTTPTransport {
	if doer == nil {
		doer = cleanhttp.DefaultClient()
	}
	return &HTTPTransport{Doer: doer}
}

func (t *HTTPTransport) RoundTrip(ctx context.Context, req Request, timeout time.Duration) (Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	hreq, err := buildHTTPRequest(ctx, req)
	if err != nil {
		return Response{}, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
		hreq = hreq.WithContext(ctx)
	}

	doer := t.Doer
	if doer == nil {
		doer = cleanhttp.DefaultClient()
	}
	resp, err := doer.Do(hreq)
	if err != nil {
		return Response{Err: err}, nil
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	out := Response{
		Status:  resp.StatusCode,
		Headers: flattenHeader(resp.Header),
		Body:    string(body),
	}
	if err != nil {
		out.Err = fmt.Errorf("read response body: %w", err)
	}
	return out, nil
}

func buildHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	if !req.Method.Valid() {
		return nil, fmt.Errorf("build request: %w: %s", ErrInvalidMethod, req.Method)
	}
	u, err := url.Parse(req.URI)
	if err != nil {
		return nil, fmt.Errorf("build request: parse url %q: %w", req.URI, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("build request: url %q is not absolute", req.URI)
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method.String(), u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range req.Headers {
		if !httpguts.ValidHeaderFieldName(k) {
			return nil, fmt.Errorf("build request: invalid header name %q", k)
		}
		if !httpguts.ValidHeaderFieldValue(v) {
			return nil, fmt.Errorf("build request: invalid value for header %q", k)
		}
		if strings.EqualFold(k, "Host") {
			hreq.Host = v
			continue
		}
		hreq.Header.Set(k, v)
	}
	return hreq, nil
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		out[k] = strings.Join(vs, ", ")
	}
	return out
}

// IsTimeout reports whether err, typically a Response.Err, was caused by a deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}

//go:generate mockgen -destination=quarrymock/transport.go -package=quarrymock github.com/r9s-ai/quarry/pkg/quarry Transport
