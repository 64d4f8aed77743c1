package httpclient

import "net/http"

// HTTPDoer captures the subset of *http.Client used by transports.
// Tests inject fake implementations so requests never leave the process.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to HTTPDoer.
type DoerFunc func(req *http.Request) (*http.Response, error)

func (f DoerFunc) Do(req *http.Request) (*http.Response, error) { return f(req) }
