package quarryserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/quarry/pkg/quarry"
)

const maxPlaceholdersBody = 1 << 20

// placeholdersBody is the request body of the render and mine endpoints.
type placeholdersBody struct {
	Named      map[string]string `json:"named"`
	Positional []string          `json:"positional"`
}

type aliasInfo struct {
	Alias  string `json:"alias"`
	Method string `json:"method"`
	URI    string `json:"uri"`
}

type renderedRequest struct {
	Alias   string            `json:"alias"`
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

type minedResponse struct {
	Alias      string            `json:"alias"`
	Status     int               `json:"status"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	DurationMs int64             `json:"duration_ms"`
}

func listAliasesHandler(st *state) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := st.Quarry()
		out := make([]aliasInfo, 0)
		for _, alias := range q.Aliases() {
			m, ok := q.Miner(alias)
			if !ok {
				continue
			}
			out = append(out, aliasInfo{Alias: alias, Method: m.Method().String(), URI: m.URI()})
		}
		c.JSON(http.StatusOK, gin.H{"base_url": q.BaseURL(), "aliases": out})
	}
}

func renderHandler(st *state) gin.HandlerFunc {
	return func(c *gin.Context) {
		alias := c.Param("alias")
		c.Set(ctxAlias, alias)
		p, err := bindPlaceholders(c)
		if err != nil {
			abortJSON(c, http.StatusBadRequest, err)
			return
		}
		req, ok := st.Quarry().Render(alias, p)
		if !ok {
			abortJSON(c, http.StatusNotFound, fmt.Errorf("unknown alias %q", alias))
			return
		}
		c.JSON(http.StatusOK, renderedRequest{
			Alias:   alias,
			Method:  req.Method.String(),
			URL:     req.URI,
			Headers: req.Headers,
			Body:    req.Body,
		})
	}
}

// mineHandler renders and sends the alias, forwarding the inbound request id.
func mineHandler(st *state, requestIDHeaderKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		alias := c.Param("alias")
		c.Set(ctxAlias, alias)
		p, err := bindPlaceholders(c)
		if err != nil {
			abortJSON(c, http.StatusBadRequest, err)
			return
		}
		q := st.Quarry()
		m, ok := q.Miner(alias)
		if !ok {
			abortJSON(c, http.StatusNotFound, fmt.Errorf("unknown alias %q", alias))
			return
		}
		req := m.Render(p)
		if id := c.GetString(requestIDHeaderKey); id != "" {
			if req.Headers == nil {
				req.Headers = map[string]string{}
			}
			if _, set := req.Headers[requestIDHeaderKey]; !set {
				req.Headers[requestIDHeaderKey] = id
			}
		}
		c.Set(ctxUpstreamURL, q.Prepare(req).URI)

		start := time.Now()
		resp, err := q.Query(c.Request.Context(), req)
		elapsed := time.Since(start)
		c.Set(ctxUpstreamMs, elapsed)
		if err != nil {
			abortJSON(c, http.StatusBadRequest, err)
			return
		}
		c.Set(ctxUpstreamStatus, resp.Status)
		if resp.Err != nil {
			status := http.StatusBadGateway
			if quarry.IsTimeout(resp.Err) {
				status = http.StatusGatewayTimeout
			}
			abortJSON(c, status, resp.Err)
			return
		}
		c.JSON(http.StatusOK, minedResponse{
			Alias:      alias,
			Status:     resp.Status,
			Headers:    resp.Headers,
			Body:       resp.Body,
			DurationMs: elapsed.Milliseconds(),
		})
	}
}

// bindPlaceholders decodes an optional placeholders body. An empty body binds
// no overrides.
func bindPlaceholders(c *gin.Context) (quarry.Placeholders, error) {
	if c.Request.Body == nil {
		return quarry.Placeholders{}, nil
	}
	b, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPlaceholdersBody+1))
	if err != nil {
		return quarry.Placeholders{}, fmt.Errorf("read body: %w", err)
	}
	if len(b) > maxPlaceholdersBody {
		return quarry.Placeholders{}, fmt.Errorf("body exceeds %d bytes", maxPlaceholdersBody)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return quarry.Placeholders{}, nil
	}
	var body placeholdersBody
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return quarry.Placeholders{}, fmt.Errorf("decode placeholders: %w", err)
	}
	return quarry.Placeholders{Named: body.Named, Positional: body.Positional}, nil
}

func abortJSON(c *gin.Context, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	c.Set(ctxError, err.Error())
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
