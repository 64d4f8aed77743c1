package restserver

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/quarry/pkg/quarry"
)

// MaxBodyBytes caps inbound bodies read by the gin bridge.
const MaxBodyBytes = 4 << 20

// GinHandler serves gin requests through r. Use it as a NoRoute handler or
// on a catch-all route.
func (r *Router) GinHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := RequestFromHTTP(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		resp := r.Dispatch(c.Request.Method, req)
		writeGinResponse(c, resp)
	}
}

// RequestFromHTTP converts an inbound request into a descriptor. Query
// parameters keep their order; only the first value of each header is kept.
func RequestFromHTTP(hr *http.Request) (quarry.Request, error) {
	req := quarry.Request{
		URI:     hr.URL.Path,
		Headers: make(map[string]string, len(hr.Header)),
	}
	if m, err := quarry.ParseMethod(hr.Method); err == nil {
		req.Method = m
	}
	for k, vs := range hr.Header {
		if len(vs) > 0 {
			req.Headers[k] = vs[0]
		}
	}
	params, err := parseOrderedQuery(hr.URL.RawQuery)
	if err != nil {
		return quarry.Request{}, err
	}
	req.Params = params
	if hr.Body != nil {
		b, err := io.ReadAll(io.LimitReader(hr.Body, MaxBodyBytes+1))
		if err != nil {
			return quarry.Request{}, fmt.Errorf("read request body: %w", err)
		}
		if len(b) > MaxBodyBytes {
			return quarry.Request{}, fmt.Errorf("request body exceeds %d bytes", MaxBodyBytes)
		}
		req.Body = string(b)
	}
	return req, nil
}

func parseOrderedQuery(raw string) (quarry.Params, error) {
	if raw == "" {
		return nil, nil
	}
	var out quarry.Params
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("invalid query key %q: %w", k, err)
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("invalid query value for %q: %w", key, err)
		}
		out = append(out, quarry.Param{Key: key, Value: val})
	}
	return out, nil
}

func writeGinResponse(c *gin.Context, resp quarry.Response) {
	for k, v := range resp.Headers {
		c.Header(k, v)
	}
	if resp.Body == "" || c.Request.Method == http.MethodHead {
		c.Status(resp.Status)
		c.Writer.WriteHeaderNow()
		return
	}
	c.Status(resp.Status)
	_, _ = c.Writer.WriteString(resp.Body)
}
