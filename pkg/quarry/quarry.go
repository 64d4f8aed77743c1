package quarry

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultTimeout bounds a single Query when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// Quarry is a registry of miners sharing a base URL, base URI and base headers.
// It is safe for concurrent use.
type Quarry struct {
	mu sync.RWMutex

	baseURL     string
	baseURI     string
	baseHeaders map[string]string
	normalize   bool
	timeout     time.Duration
	transport   Transport
	warnf       func(format string, args ...any)

	miners map[string]*Miner
}

// Option configures a Quarry.
type Option func(*Quarry)

// WithBaseURI sets the path prefix inserted between the base URL and each request URI.
func WithBaseURI(uri string) Option {
	return func(q *Quarry) { q.baseURI = uri }
}

// WithBaseHeaders sets headers merged into every request. Request headers win on conflict.
func WithBaseHeaders(h map[string]string) Option {
	return func(q *Quarry) { q.baseHeaders = cloneHeaders(h) }
}

// WithNormalize toggles separator normalization of assembled URLs. It defaults to true.
func WithNormalize(on bool) Option {
	return func(q *Quarry) { q.normalize = on }
}

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(q *Quarry) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithTransport sets the transport used by Query.
func WithTransport(t Transport) Option {
	return func(q *Quarry) {
		if t != nil {
			q.transport = t
		}
	}
}

// WithWarnf sets the sink for non-fatal diagnostics. It defaults to log.Printf.
func WithWarnf(fn func(format string, args ...any)) Option {
	return func(q *Quarry) {
		if fn != nil {
			q.warnf = fn
		}
	}
}

// New returns an empty registry rooted at baseURL.
func New(baseURL string, opts ...Option) *Quarry {
	q := &Quarry{
		baseURL:     baseURL,
		baseHeaders: map[string]string{},
		normalize:   true,
		timeout:     DefaultTimeout,
		warnf:       log.Printf,
		miners:      map[string]*Miner{},
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.transport == nil {
		q.transport = NewHTTPTransport(nil)
	}
	return q
}

func (q *Quarry) BaseURL() string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.baseURL
}

func (q *Quarry) SetBaseURL(u string) {
	q.mu.Lock()
	q.baseURL = u
	q.mu.Unlock()
}

func (q *Quarry) BaseURI() string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.baseURI
}

func (q *Quarry) SetBaseURI(uri string) {
	q.mu.Lock()
	q.baseURI = uri
	q.mu.Unlock()
}

// BaseHeaders returns a copy of the base headers.
func (q *Quarry) BaseHeaders() map[string]string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return cloneHeaders(q.baseHeaders)
}

func (q *Quarry) SetBaseHeaders(h map[string]string) {
	c := cloneHeaders(h)
	q.mu.Lock()
	q.baseHeaders = c
	q.mu.Unlock()
}

func (q *Quarry) Normalize() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.normalize
}

func (q *Quarry) Timeout() time.Duration {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.timeout
}

// AddMiner registers m under alias. An existing miner with the same alias is replaced.
func (q *Quarry) AddMiner(alias string, m *Miner) {
	if m == nil {
		return
	}
	q.mu.Lock()
	q.miners[alias] = m
	q.mu.Unlock()
}

// RemoveMiner drops alias. Removing an unknown alias is a no-op.
func (q *Quarry) RemoveMiner(alias string) {
	q.mu.Lock()
	delete(q.miners, alias)
	q.mu.Unlock()
}

// Miner returns the miner registered under alias.
func (q *Quarry) Miner(alias string) (*Miner, bool) {
	q.mu.RLock()
	m, ok := q.miners[alias]
	q.mu.RUnlock()
	return m, ok
}

// Aliases returns every registered alias, sorted.
func (q *Quarry) Aliases() []string {
	q.mu.RLock()
	out := make([]string, 0, len(q.miners))
	for k := range q.miners {
		out = append(out, k)
	}
	q.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Prepare assembles the request Query would send: base headers merged under
// req.Headers, and URI set to the absolute URL with req.Params appended to its query.
func (q *Quarry) Prepare(req Request) Request {
	q.mu.RLock()
	baseURL, baseURI, normalize := q.baseURL, q.baseURI, q.normalize
	headers := cloneHeaders(q.baseHeaders)
	warnf := q.warnf
	q.mu.RUnlock()

	for k, v := range req.Headers {
		headers[k] = v
	}

	path, query, _ := strings.Cut(req.URI, "?")
	u := strings.TrimSuffix(
		EnsureTrailingSeparator(baseURL)+EnsureTrailingSeparator(baseURI)+EnsureTrailingSeparator(path),
		"/",
	)
	if normalize {
		out, err := Normalize(u)
		if err != nil {
			warnf("quarry: %v", err)
		}
		u = out
	}
	if p := req.Params.Encode(); p != "" {
		if query != "" {
			query += "&" + p
		} else {
			query = p
		}
	}
	if query != "" {
		u += "?" + query
	}

	return Request{
		Method:  req.Method,
		URI:     u,
		Headers: headers,
		Body:    req.Body,
	}
}

// Query sends req relative to the registry's base URL and blocks until the
// transport returns. The error return is limited to requests that could not
// be sent; see Transport.
func (q *Quarry) Query(ctx context.Context, req Request) (Response, error) {
	out := q.Prepare(req)

	q.mu.RLock()
	t, timeout := q.transport, q.timeout
	q.mu.RUnlock()

	resp, err := t.RoundTrip(ctx, out, timeout)
	if err != nil {
		return Response{}, fmt.Errorf("query %s %s: %w", out.Method, out.URI, err)
	}
	return resp, nil
}

// Mine renders the miner registered under alias with p and sends it.
// An unknown alias yields a Response with StatusNotExecuted and no transport call.
func (q *Quarry) Mine(ctx context.Context, alias string, p Placeholders) (Response, error) {
	m, ok := q.Miner(alias)
	if !ok {
		return Response{Status: StatusNotExecuted}, nil
	}
	return q.Query(ctx, m.Render(p))
}

// Render renders the miner registered under alias and assembles it without sending.
func (q *Quarry) Render(alias string, p Placeholders) (Request, bool) {
	m, ok := q.Miner(alias)
	if !ok {
		return Request{}, false
	}
	return q.Prepare(m.Render(p)), true
}
