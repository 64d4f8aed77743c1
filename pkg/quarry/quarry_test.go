package quarry_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/r9s-ai/quarry/pkg/httpclient/httpclienttest"
	"github.com/r9s-ai/quarry/pkg/quarry"
	"github.com/r9s-ai/quarry/pkg/quarry/quarrymock"
)

func captureTransport(got *[]quarry.Request) quarry.Transport {
	var mu sync.Mutex
	return quarry.TransportFunc(func(_ context.Context, req quarry.Request, _ time.Duration) (quarry.Response, error) {
		mu.Lock()
		*got = append(*got, req)
		mu.Unlock()
		return quarry.Response{Status: http.StatusOK}, nil
	})
}

func mustMiner(t *testing.T, def quarry.Endpoint) *quarry.Miner {
	t.Helper()
	m, err := quarry.NewMiner(def, true)
	require.NoError(t, err)
	return m
}

func TestPrepare_BuildsURL(t *testing.T) {
	q := quarry.New("http://api.test", quarry.WithBaseURI("/v1/"))
	got := q.Prepare(quarry.Request{Method: quarry.MethodGet, URI: "users"})
	require.Equal(t, "http://api.test/v1/users", got.URI)

	q = quarry.New("http://api.test/", quarry.WithBaseURI("/v1/"), quarry.WithNormalize(false))
	got = q.Prepare(quarry.Request{Method: quarry.MethodGet, URI: "/users/"})
	require.Equal(t, "http://api.test//v1//users", got.URI)
}

func TestPrepare_EmptyURIs(t *testing.T) {
	q := quarry.New("http://api.test")
	got := q.Prepare(quarry.Request{Method: quarry.MethodGet})
	require.Equal(t, "http://api.test/", got.URI)
}

func TestPrepare_MergesHeaders(t *testing.T) {
	q := quarry.New("http://api.test", quarry.WithBaseHeaders(map[string]string{"A": "base", "B": "base"}))
	got := q.Prepare(quarry.Request{Method: quarry.MethodGet, Headers: map[string]string{"B": "req", "C": "req"}})
	require.Equal(t, map[string]string{"A": "base", "B": "req", "C": "req"}, got.Headers)
	require.Equal(t, map[string]string{"A": "base", "B": "base"}, q.BaseHeaders())
}

func TestPrepare_AppendsParams(t *testing.T) {
	q := quarry.New("http://api.test")
	got := q.Prepare(quarry.Request{
		Method: quarry.MethodGet,
		URI:    "/x?a=1",
		Params: quarry.Params{{Key: "b", Value: "2"}, {Key: "c", Value: "3"}},
	})
	require.Equal(t, "http://api.test/x?a=1&b=2&c=3", got.URI)

	got = q.Prepare(quarry.Request{Method: quarry.MethodGet, URI: "/x", Params: quarry.Params{{Key: "b", Value: "2"}}})
	require.Equal(t, "http://api.test/x?b=2", got.URI)
}

func TestPrepare_KeepsQueryVerbatim(t *testing.T) {
	q := quarry.New("http://api.test")
	got := q.Prepare(quarry.Request{Method: quarry.MethodGet, URI: "/r?next=http://x//y/"})
	require.Equal(t, "http://api.test/r?next=http://x//y/", got.URI)
}

func TestPrepare_SchemeWarning(t *testing.T) {
	var warnings []string
	q := quarry.New("http://a://b", quarry.WithWarnf(func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}))
	got := q.Prepare(quarry.Request{Method: quarry.MethodGet, URI: "/x"})
	require.Equal(t, "http://a://b///x", got.URI)
	require.Len(t, warnings, 1)
}

func TestMine_UnknownAliasDoesNotCallTransport(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	tr := quarrymock.NewMockTransport(ctrl)

	q := quarry.New("http://api.test", quarry.WithTransport(tr))
	resp, err := q.Mine(context.Background(), "missing", quarry.Placeholders{})
	require.NoError(t, err)
	require.Equal(t, quarry.StatusNotExecuted, resp.Status)
	require.False(t, resp.Executed())
}

func TestMine_RendersAndQueries(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	tr := quarrymock.NewMockTransport(ctrl)

	q := quarry.New("http://api.test",
		quarry.WithBaseURI("/v1"),
		quarry.WithBaseHeaders(map[string]string{"Authorization": "Bearer k"}),
		quarry.WithTransport(tr),
		quarry.WithTimeout(3*time.Second),
	)
	q.AddMiner("user", mustMiner(t, quarry.Endpoint{
		Method:  quarry.MethodPut,
		URI:     "/users/@{id}",
		Headers: map[string]string{"X-Id": "@{id}"},
		Body:    `{"n":"${1}"}`,
	}))

	tr.EXPECT().
		RoundTrip(gomock.Any(), gomock.Any(), 3*time.Second).
		DoAndReturn(func(_ context.Context, req quarry.Request, _ time.Duration) (quarry.Response, error) {
			require.Equal(t, quarry.MethodPut, req.Method)
			require.Equal(t, "http://api.test/v1/users/42", req.URI)
			require.Equal(t, "Bearer k", req.Headers["Authorization"])
			require.Equal(t, "42", req.Headers["X-Id"])
			require.Equal(t, `{"n":"bob"}`, req.Body)
			return quarry.Response{Status: http.StatusNoContent}, nil
		})

	resp, err := q.Mine(context.Background(), "user", quarry.Placeholders{
		Named:      map[string]string{"id": "42"},
		Positional: []string{"bob"},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.Status)
	require.True(t, resp.Executed())
}

func TestQuery_PropagatesConfigurationError(t *testing.T) {
	cfgErr := errors.New("bad url")
	q := quarry.New("http://api.test", quarry.WithTransport(quarry.TransportFunc(
		func(context.Context, quarry.Request, time.Duration) (quarry.Response, error) {
			return quarry.Response{}, cfgErr
		},
	)))
	_, err := q.Query(context.Background(), quarry.Request{Method: quarry.MethodGet})
	require.ErrorIs(t, err, cfgErr)
}

func TestAddMiner_LastWriteWins(t *testing.T) {
	var got []quarry.Request
	q := quarry.New("http://api.test", quarry.WithTransport(captureTransport(&got)))
	q.AddMiner("a", mustMiner(t, quarry.Endpoint{Method: quarry.MethodGet, URI: "/first"}))
	q.AddMiner("a", mustMiner(t, quarry.Endpoint{Method: quarry.MethodGet, URI: "/second"}))
	q.AddMiner("b", mustMiner(t, quarry.Endpoint{Method: quarry.MethodGet, URI: "/b"}))
	q.AddMiner("c", nil)

	require.Equal(t, []string{"a", "b"}, q.Aliases())
	_, err := q.Mine(context.Background(), "a", quarry.Placeholders{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "http://api.test/second", got[0].URI)

	q.RemoveMiner("a")
	q.RemoveMiner("zzz")
	require.Equal(t, []string{"b"}, q.Aliases())
}

func TestQuarry_ConcurrentReadsAndWrites(t *testing.T) {
	var got []quarry.Request
	q := quarry.New("http://api.test", quarry.WithTransport(captureTransport(&got)))
	q.AddMiner("x", mustMiner(t, quarry.Endpoint{Method: quarry.MethodGet, URI: "/x/@{i}"}))

	extra := mustMiner(t, quarry.Endpoint{Method: quarry.MethodGet})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, _ = q.Mine(context.Background(), "x", quarry.Placeholders{Named: map[string]string{"i": fmt.Sprint(i)}})
		}(i)
		go func(i int) {
			defer wg.Done()
			q.AddMiner(fmt.Sprintf("alias-%d", i), extra)
		}(i)
	}
	wg.Wait()
	require.Len(t, got, 16)
	require.Len(t, q.Aliases(), 17)
}

func TestHTTPTransport_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method=%q", r.Method)
		}
		if r.URL.Path != "/v1/items" || r.URL.RawQuery != "limit=5" {
			t.Errorf("url=%q", r.URL.String())
		}
		if got := r.Header.Get("X-Token"); got != "abc" {
			t.Errorf("X-Token=%q", got)
		}
		b, _ := io.ReadAll(r.Body)
		if string(b) != `{"a":1}` {
			t.Errorf("body=%q", b)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":9}`))
	}))
	defer srv.Close()

	q := quarry.New(srv.URL, quarry.WithBaseURI("v1"))
	q.AddMiner("create", mustMiner(t, quarry.Endpoint{
		Method:  quarry.MethodPost,
		URI:     "/items",
		Headers: map[string]string{"X-Token": "@{token}"},
		Body:    `{"a":1}`,
		Params:  quarry.Params{{Key: "limit", Value: "5"}},
	}))

	resp, err := q.Mine(context.Background(), "create", quarry.Placeholders{Named: map[string]string{"token": "abc"}})
	require.NoError(t, err)
	require.NoError(t, resp.Err)
	require.Equal(t, http.StatusCreated, resp.Status)
	require.Equal(t, "application/json", resp.Headers["Content-Type"])

	var out struct {
		ID int `json:"id"`
	}
	require.NoError(t, resp.DecodeJSON(&out))
	require.Equal(t, 9, out.ID)
}

func TestHTTPTransport_NetworkErrorInResponse(t *testing.T) {
	netErr := errors.New("connection refused")
	doer := httpclienttest.NewFakeDoerResults(t, httpclienttest.Result{Err: netErr})
	q := quarry.New("http://api.test", quarry.WithTransport(quarry.NewHTTPTransport(doer)))

	resp, err := q.Query(context.Background(), quarry.Request{Method: quarry.MethodGet, URI: "/x"})
	require.NoError(t, err)
	require.ErrorIs(t, resp.Err, netErr)
	require.Equal(t, quarry.StatusNotExecuted, resp.Status)
	require.True(t, resp.Executed())
	require.Error(t, resp.DecodeJSON(&struct{}{}))

	reqs := doer.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "http://api.test/x", reqs[0].URL.String())
}

func TestHTTPTransport_UsesInjectedDoer(t *testing.T) {
	doer := httpclienttest.NewFakeDoer(t, httpclienttest.NewStringResponse(http.StatusOK, "pong"))
	q := quarry.New("http://api.test", quarry.WithTransport(quarry.NewHTTPTransport(doer)))

	resp, err := q.Query(context.Background(), quarry.Request{
		Method:  quarry.MethodPatch,
		URI:     "/ping",
		Body:    "hello",
		Headers: map[string]string{"Host": "virtual.test"},
	})
	require.NoError(t, err)
	require.Equal(t, "pong", resp.Body)
	require.Equal(t, []string{"hello"}, doer.Bodies())
	require.Equal(t, "virtual.test", doer.Requests()[0].Host)
	require.Equal(t, http.MethodPatch, doer.Requests()[0].Method)
}

func TestHTTPTransport_ConfigurationErrors(t *testing.T) {
	tr := quarry.NewHTTPTransport(httpclienttest.NewFakeDoer(t))

	_, err := tr.RoundTrip(context.Background(), quarry.Request{Method: quarry.MethodGet, URI: "/relative"}, time.Second)
	require.Error(t, err)

	_, err = tr.RoundTrip(context.Background(), quarry.Request{Method: quarry.MethodGet, URI: "http://h/%zz"}, time.Second)
	require.Error(t, err)

	_, err = tr.RoundTrip(context.Background(), quarry.Request{
		Method:  quarry.MethodGet,
		URI:     "http://h/x",
		Headers: map[string]string{"Bad Header": "v"},
	}, time.Second)
	require.Error(t, err)

	_, err = tr.RoundTrip(context.Background(), quarry.Request{URI: "http://h/x"}, time.Second)
	require.ErrorIs(t, err, quarry.ErrInvalidMethod)

	q := quarry.New("http://a b", quarry.WithTransport(tr))
	_, err = q.Query(context.Background(), quarry.Request{Method: quarry.MethodGet})
	require.Error(t, err)
}

func TestHTTPTransport_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q := quarry.New(srv.URL, quarry.WithTimeout(50*time.Millisecond))
	resp, err := q.Query(context.Background(), quarry.Request{Method: quarry.MethodGet, URI: "/slow"})
	require.NoError(t, err)
	require.Error(t, resp.Err)
	require.True(t, quarry.IsTimeout(resp.Err))
	require.Equal(t, 50*time.Millisecond, q.Timeout())
}

func TestNew_Defaults(t *testing.T) {
	q := quarry.New("http://api.test")
	require.Equal(t, quarry.DefaultTimeout, q.Timeout())
	require.True(t, q.Normalize())
	require.Empty(t, q.BaseURI())

	q.SetBaseURL("http://other.test")
	q.SetBaseURI("/v2")
	q.SetBaseHeaders(map[string]string{"K": "V"})
	got := q.Prepare(quarry.Request{Method: quarry.MethodGet, URI: "/a"})
	require.Equal(t, "http://other.test/v2/a", got.URI)
	require.Equal(t, "V", got.Headers["K"])
}
