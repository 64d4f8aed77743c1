package quarry

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testEndpoint() Endpoint {
	return Endpoint{
		Method:  MethodPost,
		URI:     "/users//@{id}/",
		Headers: map[string]string{"X-User": "@{id}", "Accept": "application/json"},
		Body:    `{"name":"${1}"}`,
		Params:  Params{{Key: "a", Value: "1"}, {Key: "b", Value: "@{id}"}},
		Defaults: Placeholders{
			Named:      map[string]string{"id": "0"},
			Positional: []string{"anon"},
		},
	}
}

func TestNewMiner_CompilesURI(t *testing.T) {
	m, err := NewMiner(testEndpoint(), true)
	if err != nil {
		t.Fatalf("NewMiner: %v", err)
	}
	if want := "/users/@{id}?a=1&b=@{id}"; m.URI() != want {
		t.Fatalf("uri=%q want=%q", m.URI(), want)
	}
	if len(m.Warnings()) != 0 {
		t.Fatalf("unexpected warnings: %v", m.Warnings())
	}

	raw, err := NewMiner(testEndpoint(), false)
	if err != nil {
		t.Fatalf("NewMiner: %v", err)
	}
	if want := "/users//@{id}?a=1&b=@{id}"; raw.URI() != want {
		t.Fatalf("uri=%q want=%q", raw.URI(), want)
	}
}

func TestNewMiner_EmptyURI(t *testing.T) {
	m, err := NewMiner(Endpoint{Method: MethodGet}, true)
	if err != nil {
		t.Fatalf("NewMiner: %v", err)
	}
	if m.URI() != "" {
		t.Fatalf("uri=%q want empty", m.URI())
	}
}

func TestNewMiner_InvalidMethod(t *testing.T) {
	_, err := NewMiner(Endpoint{URI: "/x"}, true)
	if !errors.Is(err, ErrInvalidMethod) {
		t.Fatalf("expected ErrInvalidMethod, got %v", err)
	}
}

func TestNewMiner_SchemeWarning(t *testing.T) {
	m, err := NewMiner(Endpoint{Method: MethodGet, URI: "http://a//b://c"}, true)
	if err != nil {
		t.Fatalf("NewMiner: %v", err)
	}
	if m.URI() != "http://a//b://c" {
		t.Fatalf("uri=%q", m.URI())
	}
	ws := m.Warnings()
	if len(ws) != 1 {
		t.Fatalf("warnings=%v", ws)
	}
	var se *SchemeError
	if !errors.As(ws[0], &se) {
		t.Fatalf("warning type=%T", ws[0])
	}
}

func TestMinerRender(t *testing.T) {
	m, err := NewMiner(testEndpoint(), true)
	if err != nil {
		t.Fatalf("NewMiner: %v", err)
	}

	got := m.Render(Placeholders{Named: map[string]string{"id": "7"}, Positional: []string{"ann"}})
	want := Request{
		Method:  MethodPost,
		URI:     "/users/7?a=1&b=7",
		Headers: map[string]string{"X-User": "7", "Accept": "application/json"},
		Body:    `{"name":"ann"}`,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Render mismatch (-want +got):\n%s", diff)
	}

	def := m.Render(Placeholders{})
	if def.URI != "/users/0?a=1&b=0" || def.Body != `{"name":"anon"}` {
		t.Fatalf("defaults not applied: %+v", def)
	}
}

func TestMinerRender_IsPureAndIsolated(t *testing.T) {
	m, err := NewMiner(testEndpoint(), true)
	if err != nil {
		t.Fatalf("NewMiner: %v", err)
	}
	p := Placeholders{Named: map[string]string{"id": "3"}}
	a := m.Render(p)
	a.Headers["X-User"] = "mutated"
	a.URI = "mutated"
	b := m.Render(p)
	if b.Headers["X-User"] != "3" || b.URI != "/users/3?a=1&b=3" {
		t.Fatalf("render affected by previous result mutation: %+v", b)
	}

	h := m.Headers()
	h["Accept"] = "text/plain"
	if m.Headers()["Accept"] != "application/json" {
		t.Fatalf("Headers() must return a copy")
	}
	d := m.Defaults()
	d.Named["id"] = "changed"
	if m.Defaults().Named["id"] != "0" {
		t.Fatalf("Defaults() must return a copy")
	}
}

func TestNewMiner_CopiesDefinition(t *testing.T) {
	def := testEndpoint()
	m, err := NewMiner(def, true)
	if err != nil {
		t.Fatalf("NewMiner: %v", err)
	}
	def.Headers["X-User"] = "changed"
	def.Defaults.Named["id"] = "changed"
	got := m.Render(Placeholders{})
	if got.Headers["X-User"] != "0" {
		t.Fatalf("miner shares header map with definition: %+v", got.Headers)
	}
}

func TestMinerRender_Concurrent(t *testing.T) {
	m, err := NewMiner(testEndpoint(), true)
	if err != nil {
		t.Fatalf("NewMiner: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := m.Render(Placeholders{Named: map[string]string{"id": "1"}})
			if got.URI != "/users/1?a=1&b=1" {
				t.Errorf("uri=%q", got.URI)
			}
		}()
	}
	wg.Wait()
}
