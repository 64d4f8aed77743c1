package quarryserver

import (
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/quarry/internal/config"
	"github.com/r9s-ai/quarry/internal/logx"
	"github.com/r9s-ai/quarry/internal/version"
	"github.com/r9s-ai/quarry/pkg/quarry"
	"github.com/r9s-ai/quarry/pkg/requestid"
	"github.com/r9s-ai/quarry/pkg/restserver"
)

func NewRouter(
	cfg *config.Config,
	st *state,
	accessLogger *log.Logger,
	accessLoggerColor bool,
	accessFormatter *logx.AccessLogFormatter,
) (*gin.Engine, error) {
	requestIDHeaderKey := requestid.ResolveHeaderKey(cfg.Server.RequestIDHeader)
	static, err := buildStaticRouter(cfg)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(requestIDMiddleware(requestIDHeaderKey))
	if cfg.Logging.AccessLog {
		r.Use(requestLoggerWithColor(accessLogger, accessLoggerColor, requestIDHeaderKey, accessFormatter))
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	v1 := r.Group("/v1")
	v1.GET("/aliases", listAliasesHandler(st))
	v1.POST("/aliases/:alias/render", renderHandler(st))
	v1.POST("/mine/:alias", mineHandler(st, requestIDHeaderKey))

	staticHandler := static.GinHandler()
	r.NoRoute(func(c *gin.Context) {
		c.Set(ctxRoute, "static")
		staticHandler(c)
	})
	return r, nil
}

// buildStaticRouter turns the configured routes into a dispatch table.
func buildStaticRouter(cfg *config.Config) (*restserver.Router, error) {
	serverHeader := strings.TrimSpace(cfg.Server.ServerHeader)
	if serverHeader == "" {
		serverHeader = version.ServerHeader()
	}
	rt := restserver.New(
		restserver.WithServerHeader(serverHeader),
		restserver.WithNotFound(jsonError(http.StatusNotFound, "route not found")),
		restserver.WithMethodNotAllowed(jsonError(http.StatusMethodNotAllowed, "method not allowed")),
	)

	routes := make([]restserver.Route, 0, len(cfg.Routes))
	for i, rc := range cfg.Routes {
		m, err := quarry.ParseMethod(rc.Method)
		if err != nil {
			return nil, fmt.Errorf("routes[%d]: %w", i, err)
		}
		var h restserver.HandlerFunc
		switch {
		case rc.JSON != nil:
			h, err = restserver.JSON(rc.Status, rc.JSON)
			if err != nil {
				return nil, fmt.Errorf("routes[%d]: %w", i, err)
			}
		case rc.Text != "":
			h = restserver.Text(rc.Status, rc.Text)
		default:
			h = restserver.Status(rc.Status)
		}
		routes = append(routes, restserver.Route{
			Method:  m,
			Path:    rc.Path,
			Handler: restserver.WithHeaders(h, rc.Headers),
		})
	}
	if err := rt.Register(routes...); err != nil {
		return nil, err
	}
	return rt, nil
}

func jsonError(status int, msg string) restserver.HandlerFunc {
	h, err := restserver.JSON(status, gin.H{"error": msg})
	if err != nil {
		return restserver.Text(status, msg)
	}
	return h
}
