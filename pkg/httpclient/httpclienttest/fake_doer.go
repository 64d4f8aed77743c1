package httpclienttest

import (
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/r9s-ai/quarry/pkg/httpclient"
)

// Result is one queued outcome of FakeDoer.Do.
type Result struct {
	Response *http.Response
	Err      error
}

// FakeDoer implements httpclient.HTTPDoer so callers can run tests without
// making outbound HTTP requests. It is safe for concurrent use.
type FakeDoer struct {
	t testing.TB

	mu       sync.Mutex
	results  []Result
	requests []*http.Request
	bodies   []string
}

// NewFakeDoer returns a FakeDoer seeded with the responses that should be
// returned for each Do call.
func NewFakeDoer(t testing.TB, responses ...*http.Response) *FakeDoer {
	results := make([]Result, 0, len(responses))
	for _, r := range responses {
		results = append(results, Result{Response: r})
	}
	return &FakeDoer{t: t, results: results}
}

// NewFakeDoerResults is like NewFakeDoer but also allows queuing errors.
func NewFakeDoerResults(t testing.TB, results ...Result) *FakeDoer {
	return &FakeDoer{t: t, results: append([]Result(nil), results...)}
}

// Do records the request and its body, then returns the next queued result.
func (f *FakeDoer) Do(req *http.Request) (*http.Response, error) {
	body := ""
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		_ = req.Body.Close()
		body = string(b)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	f.bodies = append(f.bodies, body)
	if len(f.results) == 0 {
		f.t.Fatalf("fake http client has no responses left for request %s %s", req.Method, req.URL.String())
		return nil, nil
	}
	res := f.results[0]
	f.results = f.results[1:]
	if res.Response != nil && res.Response.Request == nil {
		res.Response.Request = req
	}
	return res.Response, res.Err
}

// Requests returns the HTTP requests captured so far.
func (f *FakeDoer) Requests() []*http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*http.Request(nil), f.requests...)
}

// Bodies returns the request bodies captured so far, aligned with Requests.
func (f *FakeDoer) Bodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...)
}

// NewStringResponse builds a minimal http.Response with the provided status
// code and body string.
func NewStringResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

var _ httpclient.HTTPDoer = (*FakeDoer)(nil)
