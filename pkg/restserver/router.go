package restserver

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/r9s-ai/quarry/pkg/quarry"
)

// DefaultServerHeader is sent when a handler does not set a Server header.
const DefaultServerHeader = "quarry"

// HandlerFunc serves one inbound request.
type HandlerFunc func(req quarry.Request) quarry.Response

// PanicHandlerFunc builds the response for a handler that panicked.
type PanicHandlerFunc func(req quarry.Request, recovered any) quarry.Response

// Route is one explicit route declaration.
type Route struct {
	Method  quarry.Method
	Path    string
	Handler HandlerFunc
}

// Router dispatches inbound requests by method and path.
// It is safe for concurrent use.
type Router struct {
	mu     sync.RWMutex
	routes map[quarry.Method]map[string]HandlerFunc

	notFound         HandlerFunc
	methodNotAllowed HandlerFunc
	internalError    PanicHandlerFunc
	serverHeader     string
}

// Option configures a Router.
type Option func(*Router)

// WithServerHeader overrides DefaultServerHeader. An empty value disables the header.
func WithServerHeader(v string) Option {
	return func(r *Router) { r.serverHeader = v }
}

func WithNotFound(h HandlerFunc) Option {
	return func(r *Router) {
		if h != nil {
			r.notFound = h
		}
	}
}

func WithMethodNotAllowed(h HandlerFunc) Option {
	return func(r *Router) {
		if h != nil {
			r.methodNotAllowed = h
		}
	}
}

func WithInternalError(h PanicHandlerFunc) Option {
	return func(r *Router) {
		if h != nil {
			r.internalError = h
		}
	}
}

// New returns an empty router.
func New(opts ...Option) *Router {
	r := &Router{
		routes:           map[quarry.Method]map[string]HandlerFunc{},
		notFound:         Status(http.StatusNotFound),
		methodNotAllowed: Status(http.StatusMethodNotAllowed),
		internalError: func(quarry.Request, any) quarry.Response {
			return Status(http.StatusInternalServerError)(quarry.Request{})
		},
		serverHeader: DefaultServerHeader,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle registers h for method and path. A later registration of the same
// method and path replaces the earlier one.
func (r *Router) Handle(method quarry.Method, path string, h HandlerFunc) {
	if !method.Valid() || h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byPath, ok := r.routes[method]
	if !ok {
		byPath = map[string]HandlerFunc{}
		r.routes[method] = byPath
	}
	byPath[path] = h
}

func (r *Router) Get(path string, h HandlerFunc)    { r.Handle(quarry.MethodGet, path, h) }
func (r *Router) Post(path string, h HandlerFunc)   { r.Handle(quarry.MethodPost, path, h) }
func (r *Router) Put(path string, h HandlerFunc)    { r.Handle(quarry.MethodPut, path, h) }
func (r *Router) Delete(path string, h HandlerFunc) { r.Handle(quarry.MethodDelete, path, h) }
func (r *Router) Patch(path string, h HandlerFunc)  { r.Handle(quarry.MethodPatch, path, h) }
func (r *Router) Head(path string, h HandlerFunc)   { r.Handle(quarry.MethodHead, path, h) }

// Register adds every route. It fails without registering anything if a
// route has an invalid method or a nil handler.
func (r *Router) Register(routes ...Route) error {
	var errs []error
	for i, rt := range routes {
		if !rt.Method.Valid() {
			errs = append(errs, fmt.Errorf("route #%d %q: %w", i+1, rt.Path, quarry.ErrInvalidMethod))
		}
		if rt.Handler == nil {
			errs = append(errs, fmt.Errorf("route #%d %s %q: nil handler", i+1, rt.Method, rt.Path))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	for _, rt := range routes {
		r.Handle(rt.Method, rt.Path, rt.Handler)
	}
	return nil
}

// Merge copies every route of other into r. Routes of other replace routes of
// r registered for the same method and path.
func (r *Router) Merge(other *Router) {
	if other == nil || other == r {
		return
	}
	for _, rt := range other.Routes() {
		r.Handle(rt.Method, rt.Path, rt.Handler)
	}
}

// Routes returns the registered routes ordered by method then path.
func (r *Router) Routes() []Route {
	r.mu.RLock()
	out := make([]Route, 0)
	for m, byPath := range r.routes {
		for p, h := range byPath {
			out = append(out, Route{Method: m, Path: p, Handler: h})
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Method != out[j].Method {
			return out[i].Method < out[j].Method
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// Lookup finds the handler for method and path. The path is tried as-is and
// then with one leading "/" removed.
func (r *Router) Lookup(method quarry.Method, path string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byPath := r.routes[method]
	if h, ok := byPath[path]; ok {
		return h, true
	}
	if trimmed, ok := strings.CutPrefix(path, "/"); ok {
		if h, ok := byPath[trimmed]; ok {
			return h, true
		}
	}
	return nil, false
}

// Dispatch serves req. method is the raw inbound method name; names outside
// the supported set are answered by the method-not-allowed handler. A
// handler panic is answered by the internal-error handler.
func (r *Router) Dispatch(method string, req quarry.Request) quarry.Response {
	m, err := quarry.ParseMethod(method)
	if err != nil {
		return r.finish(r.safeCall(r.methodNotAllowed, req))
	}
	req.Method = m
	h, ok := r.Lookup(m, req.URI)
	if !ok {
		return r.finish(r.safeCall(r.notFound, req))
	}
	return r.finish(r.safeCall(h, req))
}

func (r *Router) safeCall(h HandlerFunc, req quarry.Request) (resp quarry.Response) {
	defer func() {
		if rec := recover(); rec != nil {
			resp = r.internalError(req, rec)
		}
	}()
	return h(req)
}

func (r *Router) finish(resp quarry.Response) quarry.Response {
	if resp.Status == quarry.StatusNotExecuted {
		resp.Status = http.StatusOK
	}
	if r.serverHeader == "" {
		return resp
	}
	headers := make(map[string]string, len(resp.Headers)+1)
	hasServer := false
	for k, v := range resp.Headers {
		headers[k] = v
		if strings.EqualFold(k, "Server") {
			hasServer = true
		}
	}
	if !hasServer {
		headers["Server"] = r.serverHeader
	}
	resp.Headers = headers
	return resp
}
