package quarryserver

import (
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/quarry/internal/logx"
	"github.com/r9s-ai/quarry/pkg/requestid"
)

// Context keys handlers use to pass values to the access log.
const (
	ctxAlias          = "quarry.alias"
	ctxRoute          = "quarry.route"
	ctxUpstreamURL    = "quarry.upstream_url"
	ctxUpstreamStatus = "quarry.upstream_status"
	ctxUpstreamMs     = "quarry.upstream_ms"
	ctxError          = "quarry.error"
)

type contextFieldSpec struct {
	ctxKey string
	logKey string
}

var accessLogContextFieldSpecs = []contextFieldSpec{
	{ctxKey: ctxAlias, logKey: logx.FieldAlias},
	{ctxKey: ctxRoute, logKey: logx.FieldRoute},
	{ctxKey: ctxUpstreamURL, logKey: logx.FieldUpstreamURL},
	{ctxKey: ctxUpstreamStatus, logKey: logx.FieldUpstreamStatus},
	{ctxKey: ctxUpstreamMs, logKey: logx.FieldUpstreamMs},
	{ctxKey: ctxError, logKey: logx.FieldError},
}

func requestIDMiddleware(headerKey string) gin.HandlerFunc {
	headerKey = requestid.ResolveHeaderKey(headerKey)
	return func(c *gin.Context) {
		id := requestid.FromHeader(c.GetHeader(headerKey))
		c.Header(headerKey, id)
		c.Set(headerKey, id)
		c.Next()
	}
}

func requestLoggerWithColor(l *log.Logger, color bool, requestIDHeaderKey string, accessFormatter *logx.AccessLogFormatter) gin.HandlerFunc {
	requestIDHeaderKey = requestid.ResolveHeaderKey(requestIDHeaderKey)
	if l == nil {
		l = log.New(os.Stdout, "", 0)
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		fields := accessLogFields(c, requestIDHeaderKey)

		ts := time.Now()
		if accessFormatter != nil {
			l.Println(accessFormatter.Format(ts, status, latency, c.ClientIP(), c.Request.Method, c.Request.URL.Path, fields, color))
			return
		}
		l.Println(logx.FormatRequestLineWithColor(ts, status, latency, c.ClientIP(), c.Request.Method, c.Request.URL.Path, fields, color))
	}
}

func accessLogFields(c *gin.Context, requestIDHeaderKey string) map[string]any {
	out := make(map[string]any, len(accessLogContextFieldSpecs)+1)
	if v := c.GetString(requestIDHeaderKey); v != "" {
		out[logx.FieldRequestID] = v
	}
	for _, s := range accessLogContextFieldSpecs {
		if v, ok := c.Get(s.ctxKey); ok {
			out[s.logKey] = v
		}
	}
	return out
}
