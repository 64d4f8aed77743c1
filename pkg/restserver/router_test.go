package restserver

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/r9s-ai/quarry/pkg/quarry"
)

func TestDispatch_ExactAndLeadingSlashFallback(t *testing.T) {
	r := New()
	r.Get("/exact", Text(http.StatusOK, "exact"))
	r.Get("bare", Text(http.StatusOK, "bare"))

	if got := r.Dispatch("GET", quarry.Request{URI: "/exact"}); got.Body != "exact" {
		t.Fatalf("exact: %+v", got)
	}
	if got := r.Dispatch("GET", quarry.Request{URI: "/bare"}); got.Body != "bare" {
		t.Fatalf("fallback: %+v", got)
	}
	if got := r.Dispatch("GET", quarry.Request{URI: "//bare"}); got.Status != http.StatusNotFound {
		t.Fatalf("only one leading slash may be stripped: %+v", got)
	}
	if got := r.Dispatch("GET", quarry.Request{URI: "exact"}); got.Status != http.StatusNotFound {
		t.Fatalf("no slash is added: %+v", got)
	}
}

func TestDispatch_StatusHandlers(t *testing.T) {
	r := New()
	r.Post("/boom", func(quarry.Request) quarry.Response { panic("boom") })
	r.Get("/ok", Text(http.StatusOK, "ok"))

	cases := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{name: "unknown path", method: "GET", path: "/missing", want: http.StatusNotFound},
		{name: "method without route", method: "DELETE", path: "/ok", want: http.StatusNotFound},
		{name: "unsupported method", method: "TRACE", path: "/ok", want: http.StatusMethodNotAllowed},
		{name: "panic", method: "POST", path: "/boom", want: http.StatusInternalServerError},
		{name: "ok", method: "get", path: "/ok", want: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := r.Dispatch(tc.method, quarry.Request{URI: tc.path})
			if got.Status != tc.want {
				t.Fatalf("status=%d want=%d", got.Status, tc.want)
			}
			if got.Headers["Server"] != DefaultServerHeader {
				t.Fatalf("server header=%q", got.Headers["Server"])
			}
		})
	}
}

func TestDispatch_CustomHandlers(t *testing.T) {
	var recovered any
	r := New(
		WithServerHeader("test/1.0"),
		WithNotFound(Text(http.StatusNotFound, "nope")),
		WithMethodNotAllowed(Text(http.StatusMethodNotAllowed, "bad method")),
		WithInternalError(func(req quarry.Request, rec any) quarry.Response {
			recovered = rec
			return quarry.Response{Status: http.StatusInternalServerError, Body: "oops " + req.URI}
		}),
	)
	r.Get("/p", func(quarry.Request) quarry.Response { panic("kaput") })

	if got := r.Dispatch("GET", quarry.Request{URI: "/x"}); got.Body != "nope" || got.Headers["Server"] != "test/1.0" {
		t.Fatalf("not found: %+v", got)
	}
	if got := r.Dispatch("OPTIONS", quarry.Request{URI: "/x"}); got.Body != "bad method" {
		t.Fatalf("method not allowed: %+v", got)
	}
	if got := r.Dispatch("GET", quarry.Request{URI: "/p"}); got.Body != "oops /p" || recovered != "kaput" {
		t.Fatalf("internal error: %+v recovered=%v", got, recovered)
	}
}

func TestDispatch_ServerHeader(t *testing.T) {
	r := New()
	r.Get("/own", func(quarry.Request) quarry.Response {
		return quarry.Response{Status: http.StatusOK, Headers: map[string]string{"server": "custom"}}
	})
	r.Get("/zero", func(quarry.Request) quarry.Response { return quarry.Response{} })

	got := r.Dispatch("GET", quarry.Request{URI: "/own"})
	if got.Headers["server"] != "custom" || got.Headers["Server"] != "" {
		t.Fatalf("handler server header overridden: %v", got.Headers)
	}
	got = r.Dispatch("GET", quarry.Request{URI: "/zero"})
	if got.Status != http.StatusOK {
		t.Fatalf("zero status should become 200, got %d", got.Status)
	}

	off := New(WithServerHeader(""))
	off.Get("/a", Status(http.StatusNoContent))
	if got := off.Dispatch("GET", quarry.Request{URI: "/a"}); got.Headers["Server"] != "" {
		t.Fatalf("server header should be disabled: %v", got.Headers)
	}
}

func TestDispatch_HandlerSeesMethodAndParams(t *testing.T) {
	r := New()
	r.Put("/echo", func(req quarry.Request) quarry.Response {
		v, _ := req.Param("q")
		return quarry.Response{Status: http.StatusOK, Body: req.Method.String() + ":" + v}
	})
	got := r.Dispatch("PUT", quarry.Request{URI: "/echo", Params: quarry.Params{{Key: "q", Value: "1"}}})
	if got.Body != "PUT:1" {
		t.Fatalf("body=%q", got.Body)
	}
}

func TestRegisterAndMerge(t *testing.T) {
	r := New()
	err := r.Register(
		Route{Method: quarry.MethodGet, Path: "/a", Handler: Text(http.StatusOK, "a")},
		Route{Method: quarry.MethodPost, Path: "/b", Handler: Text(http.StatusOK, "b")},
	)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	err = r.Register(
		Route{Method: quarry.MethodGet, Path: "/c", Handler: Text(http.StatusOK, "c")},
		Route{Path: "/bad", Handler: Text(http.StatusOK, "bad")},
		Route{Method: quarry.MethodGet, Path: "/nil"},
	)
	if !errors.Is(err, quarry.ErrInvalidMethod) || !strings.Contains(err.Error(), "nil handler") {
		t.Fatalf("expected joined errors, got %v", err)
	}
	if _, ok := r.Lookup(quarry.MethodGet, "/c"); ok {
		t.Fatalf("failed Register must not add routes")
	}

	other := New()
	other.Get("/a", Text(http.StatusOK, "a2"))
	other.Delete("/d", Status(http.StatusNoContent))
	r.Merge(other)
	r.Merge(nil)
	r.Merge(r)

	routes := r.Routes()
	if len(routes) != 3 {
		t.Fatalf("routes=%d", len(routes))
	}
	if routes[0].Method != quarry.MethodGet || routes[1].Method != quarry.MethodPost || routes[2].Method != quarry.MethodDelete {
		t.Fatalf("unexpected order: %+v", routes)
	}
	if got := r.Dispatch("GET", quarry.Request{URI: "/a"}); got.Body != "a2" {
		t.Fatalf("merged route should win: %q", got.Body)
	}
}

func TestHandlers(t *testing.T) {
	h, err := JSON(http.StatusCreated, map[string]int{"n": 1})
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	got := h(quarry.Request{})
	if got.Status != http.StatusCreated || got.Body != `{"n":1}` || got.Headers["Content-Type"] != "application/json" {
		t.Fatalf("json handler: %+v", got)
	}
	if _, err := JSON(http.StatusOK, func() {}); err == nil {
		t.Fatalf("expected encode error")
	}

	got = Text(http.StatusOK, "hi")(quarry.Request{})
	if !strings.HasPrefix(got.Headers["Content-Type"], "text/plain") {
		t.Fatalf("text handler: %+v", got)
	}

	wrapped := WithHeaders(Text(http.StatusOK, "hi"), map[string]string{"X-A": "1", "Content-Type": "ignored"})
	got = wrapped(quarry.Request{})
	if got.Headers["X-A"] != "1" || !strings.HasPrefix(got.Headers["Content-Type"], "text/plain") {
		t.Fatalf("with headers: %v", got.Headers)
	}
}

func TestDispatch_Concurrent(t *testing.T) {
	r := New()
	shared := Static(http.StatusOK, "text/plain", "x")
	r.Get("/x", shared)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if got := r.Dispatch("GET", quarry.Request{URI: "/x"}); got.Status != http.StatusOK {
				t.Errorf("status=%d", got.Status)
			}
		}()
		go func() {
			defer wg.Done()
			r.Get("/y", shared)
		}()
	}
	wg.Wait()
}
